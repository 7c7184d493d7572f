package rewards

import (
	"net/http"

	model "github.com/glkeru/rewards/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Админские маршруты: аутентификация плюс проверка флага администратора
func (h *RewardsHandler) registerAdminRoutes(router *mux.Router) {
	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(h.Authenticate, h.AdminOnly)

	admin.HandleFunc("/analytics", h.AnalyticsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/users", h.UserListHandler).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}/points", h.GrantHandler).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}/active", h.UserActiveHandler).Methods(http.MethodPost)
	admin.HandleFunc("/receipts", h.AdminReceiptListHandler).Methods(http.MethodGet)
	admin.HandleFunc("/receipts/{id}", h.AdminReceiptGetHandler).Methods(http.MethodGet)
	admin.HandleFunc("/receipts/{id}/review", h.ReceiptReviewHandler).Methods(http.MethodPost)
	admin.HandleFunc("/exchanges", h.AdminExchangeListHandler).Methods(http.MethodGet)
	admin.HandleFunc("/exchanges/{id}/status", h.ExchangeStatusHandler).Methods(http.MethodPost)
	admin.HandleFunc("/surveys", h.AdminSurveyListHandler).Methods(http.MethodGet)
	admin.HandleFunc("/surveys", h.SurveyCreateHandler).Methods(http.MethodPost)
	admin.HandleFunc("/surveys/{id}", h.AdminSurveyGetHandler).Methods(http.MethodGet)
	admin.HandleFunc("/surveys/{id}", h.SurveyUpdateHandler).Methods(http.MethodPut)
	admin.HandleFunc("/shopping/{id}/status", h.TrackStatusHandler).Methods(http.MethodPost)
	admin.HandleFunc("/campaigns", h.AdminCampaignListHandler).Methods(http.MethodGet)
	admin.HandleFunc("/campaigns", h.CampaignSaveHandler).Methods(http.MethodPost)
	admin.HandleFunc("/announcements", h.AdminAnnouncementListHandler).Methods(http.MethodGet)
	admin.HandleFunc("/announcements", h.AnnouncementSaveHandler).Methods(http.MethodPost)
}

func (h *RewardsHandler) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !userFrom(req).IsAdmin {
			http.Error(w, "Administrator access is required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// Сводка для панели
func (h *RewardsHandler) AnalyticsHandler(w http.ResponseWriter, req *http.Request) {
	analytics, err := h.admin.Analytics(req.Context())
	if err != nil {
		h.Error(w, "AnalyticsHandler", err)
		return
	}
	h.JSON(w, "AnalyticsHandler", analytics)
}

// Пользователи
func (h *RewardsHandler) UserListHandler(w http.ResponseWriter, req *http.Request) {
	users, err := h.admin.ListUsers(req.Context(), req.URL.Query().Get("search"),
		queryUint(req, "offset"), queryUint(req, "limit"))
	if err != nil {
		h.Error(w, "UserListHandler", err)
		return
	}
	h.JSON(w, "UserListHandler", users)
}

type GrantRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// Ручное начисление
func (h *RewardsHandler) GrantHandler(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	request := &GrantRequest{}
	if !h.Body(w, req, "GrantHandler", request) {
		return
	}
	tnx, err := h.admin.Grant(req.Context(), id, request.Amount, request.Description)
	if err != nil {
		h.Error(w, "GrantHandler", err)
		return
	}
	h.JSON(w, "GrantHandler", tnx)
}

type UserActiveRequest struct {
	Active bool `json:"active"`
}

// Включение/отключение пользователя
func (h *RewardsHandler) UserActiveHandler(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	request := &UserActiveRequest{}
	if !h.Body(w, req, "UserActiveHandler", request) {
		return
	}
	err = h.admin.SetUserActive(req.Context(), userFrom(req).ID, id, request.Active)
	if err != nil {
		h.Error(w, "UserActiveHandler", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Чеки на проверку
func (h *RewardsHandler) AdminReceiptListHandler(w http.ResponseWriter, req *http.Request) {
	status := model.ReceiptStatus(req.URL.Query().Get("status"))
	switch status {
	case "", model.ReceiptPending, model.ReceiptApproved, model.ReceiptRejected:
	default:
		http.Error(w, "status is not correct", http.StatusBadRequest)
		return
	}
	receipts, err := h.receipts.ListAll(req.Context(), status, queryUint(req, "offset"), queryUint(req, "limit"))
	if err != nil {
		h.Error(w, "AdminReceiptListHandler", err)
		return
	}
	h.JSON(w, "AdminReceiptListHandler", receipts)
}

// Любой чек по ID
func (h *RewardsHandler) AdminReceiptGetHandler(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	receipt, err := h.receipts.Get(req.Context(), id)
	if err != nil {
		h.Error(w, "AdminReceiptGetHandler", err)
		return
	}
	h.JSON(w, "AdminReceiptGetHandler", receipt)
}

type ReviewRequest struct {
	Status model.ReceiptStatus `json:"status"`
	Points int64               `json:"points"`
	Reason string              `json:"reason"`
}

// Результат проверки чека
func (h *RewardsHandler) ReceiptReviewHandler(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	request := &ReviewRequest{}
	if !h.Body(w, req, "ReceiptReviewHandler", request) {
		return
	}
	if request.Status != model.ReceiptApproved && request.Status != model.ReceiptRejected {
		http.Error(w, "status is not correct", http.StatusBadRequest)
		return
	}
	receipt, err := h.receipts.Review(req.Context(), id, request.Status, request.Points, request.Reason)
	if err != nil {
		h.Error(w, "ReceiptReviewHandler", err)
		return
	}
	h.JSON(w, "ReceiptReviewHandler", receipt)
}

// Заявки на обмен
func (h *RewardsHandler) AdminExchangeListHandler(w http.ResponseWriter, req *http.Request) {
	status := model.ExchangeStatus(req.URL.Query().Get("status"))
	switch status {
	case "", model.ExchangePending, model.ExchangeProcessing, model.ExchangeCompleted, model.ExchangeRejected:
	default:
		http.Error(w, "status is not correct", http.StatusBadRequest)
		return
	}
	exchanges, err := h.exchanges.ListAll(req.Context(), status, queryUint(req, "offset"), queryUint(req, "limit"))
	if err != nil {
		h.Error(w, "AdminExchangeListHandler", err)
		return
	}
	h.JSON(w, "AdminExchangeListHandler", exchanges)
}

type ExchangeStatusRequest struct {
	Status model.ExchangeStatus `json:"status"`
}

// Смена статуса заявки
func (h *RewardsHandler) ExchangeStatusHandler(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	request := &ExchangeStatusRequest{}
	if !h.Body(w, req, "ExchangeStatusHandler", request) {
		return
	}
	switch request.Status {
	case model.ExchangeProcessing, model.ExchangeCompleted, model.ExchangeRejected:
	default:
		http.Error(w, "status is not correct", http.StatusBadRequest)
		return
	}
	exchange, err := h.exchanges.SetStatus(req.Context(), id, request.Status)
	if err != nil {
		h.Error(w, "ExchangeStatusHandler", err)
		return
	}
	h.JSON(w, "ExchangeStatusHandler", exchange)
}

// Все анкеты
func (h *RewardsHandler) AdminSurveyListHandler(w http.ResponseWriter, req *http.Request) {
	surveys, err := h.surveys.ListAll(req.Context(), queryUint(req, "offset"), queryUint(req, "limit"))
	if err != nil {
		h.Error(w, "AdminSurveyListHandler", err)
		return
	}
	h.JSON(w, "AdminSurveyListHandler", surveys)
}

// Анкета, включая неактивные
func (h *RewardsHandler) AdminSurveyGetHandler(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	survey, err := h.surveys.GetAdmin(req.Context(), id)
	if err != nil {
		h.Error(w, "AdminSurveyGetHandler", err)
		return
	}
	h.JSON(w, "AdminSurveyGetHandler", survey)
}

// Создание анкеты
func (h *RewardsHandler) SurveyCreateHandler(w http.ResponseWriter, req *http.Request) {
	survey := &model.Survey{}
	if !h.Body(w, req, "SurveyCreateHandler", survey) {
		return
	}
	if survey.Title == "" {
		http.Error(w, "title field is required", http.StatusBadRequest)
		return
	}
	created, err := h.surveys.Create(req.Context(), *survey)
	if err != nil {
		h.Error(w, "SurveyCreateHandler", err)
		return
	}
	h.JSON(w, "SurveyCreateHandler", created)
}

// Обновление анкеты
func (h *RewardsHandler) SurveyUpdateHandler(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	survey := &model.Survey{}
	if !h.Body(w, req, "SurveyUpdateHandler", survey) {
		return
	}
	if survey.Title == "" {
		http.Error(w, "title field is required", http.StatusBadRequest)
		return
	}
	survey.ID = id
	err = h.surveys.Update(req.Context(), *survey)
	if err != nil {
		h.Error(w, "SurveyUpdateHandler", err)
		return
	}
	h.JSON(w, "SurveyUpdateHandler", survey)
}

type TrackStatusRequest struct {
	Status model.TrackStatus `json:"status"`
}

// Смена статуса покупки
func (h *RewardsHandler) TrackStatusHandler(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	request := &TrackStatusRequest{}
	if !h.Body(w, req, "TrackStatusHandler", request) {
		return
	}
	switch request.Status {
	case model.TrackPending, model.TrackConfirmed, model.TrackPointsAwarded:
	default:
		http.Error(w, "status is not correct", http.StatusBadRequest)
		return
	}
	err = h.shopping.SetStatus(req.Context(), id, request.Status)
	if err != nil {
		h.Error(w, "TrackStatusHandler", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Все кампании
func (h *RewardsHandler) AdminCampaignListHandler(w http.ResponseWriter, req *http.Request) {
	if h.content == nil {
		h.JSON(w, "AdminCampaignListHandler", []model.Campaign{})
		return
	}
	campaigns, err := h.content.CampaignList(req.Context(), false)
	if err != nil {
		h.Error(w, "AdminCampaignListHandler", err)
		return
	}
	h.JSON(w, "AdminCampaignListHandler", campaigns)
}

// Создание/обновление кампании
func (h *RewardsHandler) CampaignSaveHandler(w http.ResponseWriter, req *http.Request) {
	if h.content == nil {
		http.Error(w, "Content storage is not configured", http.StatusServiceUnavailable)
		return
	}
	campaign := &model.Campaign{}
	if !h.Body(w, req, "CampaignSaveHandler", campaign) {
		return
	}
	if campaign.Title == "" {
		http.Error(w, "title field is required", http.StatusBadRequest)
		return
	}
	if campaign.ID == uuid.Nil {
		campaign.ID = uuid.New()
	}
	saved, err := h.content.CampaignSave(req.Context(), *campaign)
	if err != nil {
		h.Error(w, "CampaignSaveHandler", err)
		return
	}
	h.JSON(w, "CampaignSaveHandler", saved)
}

// Все объявления
func (h *RewardsHandler) AdminAnnouncementListHandler(w http.ResponseWriter, req *http.Request) {
	if h.content == nil {
		h.JSON(w, "AdminAnnouncementListHandler", []model.Announcement{})
		return
	}
	announcements, err := h.content.AnnouncementList(req.Context(), false)
	if err != nil {
		h.Error(w, "AdminAnnouncementListHandler", err)
		return
	}
	h.JSON(w, "AdminAnnouncementListHandler", announcements)
}

// Создание/обновление объявления
func (h *RewardsHandler) AnnouncementSaveHandler(w http.ResponseWriter, req *http.Request) {
	if h.content == nil {
		http.Error(w, "Content storage is not configured", http.StatusServiceUnavailable)
		return
	}
	announcement := &model.Announcement{}
	if !h.Body(w, req, "AnnouncementSaveHandler", announcement) {
		return
	}
	if announcement.Title == "" {
		http.Error(w, "title field is required", http.StatusBadRequest)
		return
	}
	if announcement.ID == uuid.Nil {
		announcement.ID = uuid.New()
	}
	saved, err := h.content.AnnouncementSave(req.Context(), *announcement)
	if err != nil {
		h.Error(w, "AnnouncementSaveHandler", err)
		return
	}
	h.JSON(w, "AnnouncementSaveHandler", saved)
}
