package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	interf "github.com/glkeru/rewards/internal/interfaces"
	model "github.com/glkeru/rewards/internal/models"
	services "github.com/glkeru/rewards/internal/services"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type RewardsHandler struct {
	router    *mux.Router
	logger    *zap.Logger
	auth      *services.AuthService
	ledger    *services.LedgerService
	receipts  *services.ReceiptService
	exchanges *services.ExchangeService
	fitness   *services.FitnessService
	surveys   *services.SurveyService
	referrals *services.ReferralService
	shopping  *services.ShoppingService
	admin     *services.AdminService
	content   interf.ContentStorage
	uploadDir string
}

func NewHandler(logger *zap.Logger,
	auth *services.AuthService,
	ledger *services.LedgerService,
	receipts *services.ReceiptService,
	exchanges *services.ExchangeService,
	fitness *services.FitnessService,
	surveys *services.SurveyService,
	referrals *services.ReferralService,
	shopping *services.ShoppingService,
	admin *services.AdminService,
	content interf.ContentStorage) *RewardsHandler {

	uploadDir := os.Getenv("REWARDS_UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = "./uploads"
	}

	router := mux.NewRouter()
	handler := &RewardsHandler{
		router:    router,
		logger:    logger,
		auth:      auth,
		ledger:    ledger,
		receipts:  receipts,
		exchanges: exchanges,
		fitness:   fitness,
		surveys:   surveys,
		referrals: referrals,
		shopping:  shopping,
		admin:     admin,
		content:   content,
		uploadDir: uploadDir,
	}

	router.HandleFunc("/auth/register", handler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/auth/login", handler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/auth/refresh", handler.RefreshHandler).Methods(http.MethodPost)

	user := router.NewRoute().Subrouter()
	user.Use(handler.Authenticate)
	user.HandleFunc("/points/balance", handler.BalanceHandler).Methods(http.MethodGet)
	user.HandleFunc("/points/history", handler.HistoryHandler).Methods(http.MethodGet)
	user.HandleFunc("/exchange/options", handler.ExchangeOptionsHandler).Methods(http.MethodGet)
	user.HandleFunc("/exchange", handler.ExchangeCreateHandler).Methods(http.MethodPost)
	user.HandleFunc("/exchange", handler.ExchangeListHandler).Methods(http.MethodGet)
	user.HandleFunc("/receipts", handler.ReceiptSubmitHandler).Methods(http.MethodPost)
	user.HandleFunc("/receipts", handler.ReceiptListHandler).Methods(http.MethodGet)
	user.HandleFunc("/receipts/{id}", handler.ReceiptGetHandler).Methods(http.MethodGet)
	user.HandleFunc("/fitness/steps", handler.StepsHandler).Methods(http.MethodPost)
	user.HandleFunc("/fitness/steps", handler.StepsRecentHandler).Methods(http.MethodGet)
	user.HandleFunc("/fitness/bottles", handler.BottlesHandler).Methods(http.MethodGet)
	user.HandleFunc("/fitness/consume", handler.ConsumeHandler).Methods(http.MethodPost)
	user.HandleFunc("/surveys", handler.SurveyListHandler).Methods(http.MethodGet)
	user.HandleFunc("/surveys/{id}", handler.SurveyGetHandler).Methods(http.MethodGet)
	user.HandleFunc("/surveys/{id}/answers", handler.SurveySubmitHandler).Methods(http.MethodPost)
	user.HandleFunc("/referral/code", handler.ReferralCodeHandler).Methods(http.MethodGet)
	user.HandleFunc("/referral/history", handler.ReferralHistoryHandler).Methods(http.MethodGet)
	user.HandleFunc("/shopping/track", handler.ShoppingTrackHandler).Methods(http.MethodPost)
	user.HandleFunc("/shopping/history", handler.ShoppingHistoryHandler).Methods(http.MethodGet)
	user.HandleFunc("/campaigns", handler.CampaignListHandler).Methods(http.MethodGet)
	user.HandleFunc("/announcements", handler.AnnouncementListHandler).Methods(http.MethodGet)

	handler.registerAdminRoutes(router)
	return handler
}

func (h *RewardsHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.router.ServeHTTP(w, req)
}

func (h *RewardsHandler) Log(msg string, service string, err error) {
	h.logger.Error(msg,
		zap.String("service", service),
		zap.Error(err),
	)
}

// json-ответ
func (h *RewardsHandler) JSON(w http.ResponseWriter, service string, payload any) {
	j, err := json.Marshal(payload)
	if err != nil {
		h.Log("Marshal", service, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(j)
}

// разбор тела запроса
func (h *RewardsHandler) Body(w http.ResponseWriter, req *http.Request, service string, target any) bool {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.Log("Get request body", service, err)
		http.Error(w, "Body is empty", http.StatusBadRequest)
		return false
	}
	defer req.Body.Close()
	err = json.Unmarshal(body, target)
	if err != nil {
		h.Log("Unmarshal", service, err)
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return false
	}
	return true
}

// Ошибки домена отдаем как есть: 404 для отсутствующих сущностей,
// 400 для нарушенных условий, остальное - 500 с записью в лог
func (h *RewardsHandler) Error(w http.ResponseWriter, service string, err error) {
	var bottlesErr *model.NotEnoughBottlesError
	var minErr *model.MinAmountError
	switch {
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrInvalidLogin):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, model.ErrNotEnoughPoints),
		errors.Is(err, model.ErrAlreadyAnswered),
		errors.Is(err, model.ErrAlreadyReferred),
		errors.Is(err, model.ErrSurveyClosed),
		errors.Is(err, model.ErrFinalStatus),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrEmailTaken),
		errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrSelfUpdate),
		errors.As(err, &bottlesErr),
		errors.As(err, &minErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.Log("Service call", service, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func pathID(req *http.Request) (int64, error) {
	vars := mux.Vars(req)
	return strconv.ParseInt(vars["id"], 10, 64)
}

func queryUint(req *http.Request, name string) uint64 {
	val, err := strconv.ParseUint(req.URL.Query().Get(name), 10, 64)
	if err != nil {
		return 0
	}
	return val
}

// контекст аутентифицированного пользователя

type contextKey string

const userKey contextKey = "user"

func userFrom(req *http.Request) model.User {
	user, _ := req.Context().Value(userKey).(model.User)
	return user
}

// Проверка токена, пользователь кладется в контекст запроса
func (h *RewardsHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		header := req.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}
		userID, tokenType, err := h.auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil || tokenType != "access" {
			http.Error(w, "Token is not valid", http.StatusUnauthorized)
			return
		}
		user, err := h.auth.User(req.Context(), userID)
		if err != nil || !user.IsActive {
			http.Error(w, "Token is not valid", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(req.Context(), userKey, user)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// auth

type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	ReferralCode string `json:"referral_code"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LoginResponse struct {
	User   model.User      `json:"user"`
	Tokens services.Tokens `json:"tokens"`
}

// Регистрация
func (h *RewardsHandler) RegisterHandler(w http.ResponseWriter, req *http.Request) {
	request := &RegisterRequest{}
	if !h.Body(w, req, "RegisterHandler", request) {
		return
	}
	user, err := h.auth.Register(req.Context(), request.Email, request.Password, request.Name, request.ReferralCode)
	if err != nil {
		if errors.Is(err, model.ErrEmailTaken) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.Error(w, "RegisterHandler", err)
		return
	}
	tokens, err := h.auth.CreateTokens(user)
	if err != nil {
		h.Error(w, "RegisterHandler", err)
		return
	}
	h.JSON(w, "RegisterHandler", &LoginResponse{user, tokens})
}

// Вход
func (h *RewardsHandler) LoginHandler(w http.ResponseWriter, req *http.Request) {
	request := &LoginRequest{}
	if !h.Body(w, req, "LoginHandler", request) {
		return
	}
	user, tokens, err := h.auth.Login(req.Context(), request.Email, request.Password)
	if err != nil {
		h.Error(w, "LoginHandler", err)
		return
	}
	h.JSON(w, "LoginHandler", &LoginResponse{user, tokens})
}

// Обновление токенов
func (h *RewardsHandler) RefreshHandler(w http.ResponseWriter, req *http.Request) {
	request := &RefreshRequest{}
	if !h.Body(w, req, "RefreshHandler", request) {
		return
	}
	tokens, err := h.auth.Refresh(req.Context(), request.RefreshToken)
	if err != nil {
		http.Error(w, "Token is not valid", http.StatusUnauthorized)
		return
	}
	h.JSON(w, "RefreshHandler", tokens)
}

// баллы

type BalanceResponse struct {
	Points int64 `json:"points"`
}

// Баланс
func (h *RewardsHandler) BalanceHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	points, err := h.ledger.GetBalance(req.Context(), user.ID)
	if err != nil {
		h.Error(w, "BalanceHandler", err)
		return
	}
	h.JSON(w, "BalanceHandler", &BalanceResponse{points})
}

// История транзакций
func (h *RewardsHandler) HistoryHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	tnxs, err := h.ledger.GetTnx(req.Context(), user.ID, queryUint(req, "offset"), queryUint(req, "limit"))
	if err != nil {
		h.Error(w, "HistoryHandler", err)
		return
	}
	h.JSON(w, "HistoryHandler", tnxs)
}

// обмен баллов

type ExchangeRequest struct {
	Amount            int64  `json:"amount"`
	Destination       string `json:"destination"`
	DestinationDetail string `json:"destination_detail"`
}

// Направления обмена
func (h *RewardsHandler) ExchangeOptionsHandler(w http.ResponseWriter, req *http.Request) {
	h.JSON(w, "ExchangeOptionsHandler", h.exchanges.Options())
}

// Заявка на обмен
func (h *RewardsHandler) ExchangeCreateHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	request := &ExchangeRequest{}
	if !h.Body(w, req, "ExchangeCreateHandler", request) {
		return
	}
	exchange, err := h.exchanges.Create(req.Context(), user.ID, request.Amount, request.Destination, request.DestinationDetail)
	if err != nil {
		h.Error(w, "ExchangeCreateHandler", err)
		return
	}
	h.JSON(w, "ExchangeCreateHandler", exchange)
}

// Заявки пользователя
func (h *RewardsHandler) ExchangeListHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	exchanges, err := h.exchanges.ListForUser(req.Context(), user.ID, queryUint(req, "offset"), queryUint(req, "limit"))
	if err != nil {
		h.Error(w, "ExchangeListHandler", err)
		return
	}
	h.JSON(w, "ExchangeListHandler", exchanges)
}

// чеки

// Загрузка чека: multipart с изображением и полями магазина и суммы
func (h *RewardsHandler) ReceiptSubmitHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	err := req.ParseMultipartForm(10 << 20)
	if err != nil {
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}

	amount, err := strconv.ParseInt(req.FormValue("amount"), 10, 64)
	if err != nil {
		http.Error(w, "amount field is required", http.StatusBadRequest)
		return
	}
	var purchasedAt time.Time
	if val := req.FormValue("purchased_at"); val != "" {
		purchasedAt, err = time.Parse(time.RFC3339, val)
		if err != nil {
			http.Error(w, "purchased_at is not correct", http.StatusBadRequest)
			return
		}
	}

	file, header, err := req.FormFile("image")
	if err != nil {
		http.Error(w, "image field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	imageURL, err := h.saveUpload(file, header.Filename)
	if err != nil {
		h.Error(w, "ReceiptSubmitHandler", err)
		return
	}

	receipt, err := h.receipts.Submit(req.Context(), user.ID, imageURL,
		req.FormValue("store_name"), amount, req.FormValue("items"), purchasedAt)
	if err != nil {
		h.Error(w, "ReceiptSubmitHandler", err)
		return
	}
	h.JSON(w, "ReceiptSubmitHandler", receipt)
}

// сохранение изображения под случайным именем
func (h *RewardsHandler) saveUpload(file io.Reader, filename string) (string, error) {
	err := os.MkdirAll(h.uploadDir, 0o755)
	if err != nil {
		return "", err
	}
	name := uuid.New().String() + filepath.Ext(filename)
	path := filepath.Join(h.uploadDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	_, err = io.Copy(dst, file)
	if err != nil {
		return "", err
	}
	return "/uploads/" + name, nil
}

// Чеки пользователя
func (h *RewardsHandler) ReceiptListHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	receipts, err := h.receipts.ListForUser(req.Context(), user.ID, queryUint(req, "offset"), queryUint(req, "limit"))
	if err != nil {
		h.Error(w, "ReceiptListHandler", err)
		return
	}
	h.JSON(w, "ReceiptListHandler", receipts)
}

// Чек пользователя
func (h *RewardsHandler) ReceiptGetHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	id, err := pathID(req)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	receipt, err := h.receipts.GetForUser(req.Context(), id, user.ID)
	if err != nil {
		h.Error(w, "ReceiptGetHandler", err)
		return
	}
	h.JSON(w, "ReceiptGetHandler", receipt)
}

// шаги и бутылки

type StepsRequest struct {
	Steps int64  `json:"steps"`
	Date  string `json:"date"`
}

type ConsumeRequest struct {
	Bottles int64 `json:"bottles"`
}

type BottlesResponse struct {
	Available  int64 `json:"available"`
	TotalSteps int64 `json:"total_steps"`
}

// Шаги за день
func (h *RewardsHandler) StepsHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	request := &StepsRequest{}
	if !h.Body(w, req, "StepsHandler", request) {
		return
	}
	var date time.Time
	if request.Date != "" {
		var err error
		date, err = time.Parse("2006-01-02", request.Date)
		if err != nil {
			http.Error(w, "date is not correct", http.StatusBadRequest)
			return
		}
	}
	log, err := h.fitness.UpsertSteps(req.Context(), user.ID, date, request.Steps)
	if err != nil {
		h.Error(w, "StepsHandler", err)
		return
	}
	h.JSON(w, "StepsHandler", log)
}

// Шаги за последние дни
func (h *RewardsHandler) StepsRecentHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))
	logs, err := h.fitness.Recent(req.Context(), user.ID, days)
	if err != nil {
		h.Error(w, "StepsRecentHandler", err)
		return
	}
	h.JSON(w, "StepsRecentHandler", logs)
}

// Доступные бутылки
func (h *RewardsHandler) BottlesHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	available, err := h.fitness.AvailableBottles(req.Context(), user.ID)
	if err != nil {
		h.Error(w, "BottlesHandler", err)
		return
	}
	total, err := h.fitness.TotalSteps(req.Context(), user.ID)
	if err != nil {
		h.Error(w, "BottlesHandler", err)
		return
	}
	h.JSON(w, "BottlesHandler", &BottlesResponse{available, total})
}

// Обмен бутылок на баллы
func (h *RewardsHandler) ConsumeHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	request := &ConsumeRequest{}
	if !h.Body(w, req, "ConsumeHandler", request) {
		return
	}
	consumption, err := h.fitness.Consume(req.Context(), user.ID, request.Bottles)
	if err != nil {
		h.Error(w, "ConsumeHandler", err)
		return
	}
	h.JSON(w, "ConsumeHandler", consumption)
}

// анкеты

type AnswerRequest struct {
	Answers json.RawMessage `json:"answers"`
}

// Доступные анкеты
func (h *RewardsHandler) SurveyListHandler(w http.ResponseWriter, req *http.Request) {
	surveys, err := h.surveys.ListActive(req.Context(), queryUint(req, "offset"), queryUint(req, "limit"))
	if err != nil {
		h.Error(w, "SurveyListHandler", err)
		return
	}
	h.JSON(w, "SurveyListHandler", surveys)
}

// Анкета
func (h *RewardsHandler) SurveyGetHandler(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	survey, err := h.surveys.Get(req.Context(), id)
	if err != nil {
		h.Error(w, "SurveyGetHandler", err)
		return
	}
	h.JSON(w, "SurveyGetHandler", survey)
}

// Ответ на анкету
func (h *RewardsHandler) SurveySubmitHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	id, err := pathID(req)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	request := &AnswerRequest{}
	if !h.Body(w, req, "SurveySubmitHandler", request) {
		return
	}
	answer, err := h.surveys.Submit(req.Context(), user.ID, id, string(request.Answers))
	if err != nil {
		h.Error(w, "SurveySubmitHandler", err)
		return
	}
	h.JSON(w, "SurveySubmitHandler", answer)
}

// приглашения

type ReferralCodeResponse struct {
	Code string `json:"code"`
}

// Код приглашения
func (h *RewardsHandler) ReferralCodeHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	code, err := h.referrals.GetOrCreateCode(req.Context(), user.ID)
	if err != nil {
		h.Error(w, "ReferralCodeHandler", err)
		return
	}
	h.JSON(w, "ReferralCodeHandler", &ReferralCodeResponse{code})
}

// Приглашенные пользователи
func (h *RewardsHandler) ReferralHistoryHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	history, err := h.referrals.History(req.Context(), user.ID)
	if err != nil {
		h.Error(w, "ReferralHistoryHandler", err)
		return
	}
	h.JSON(w, "ReferralHistoryHandler", history)
}

// трекинг покупок

type TrackRequest struct {
	Merchant string `json:"merchant"`
	OrderID  string `json:"order_id"`
}

// Переход в партнерский магазин
func (h *RewardsHandler) ShoppingTrackHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	request := &TrackRequest{}
	if !h.Body(w, req, "ShoppingTrackHandler", request) {
		return
	}
	if request.Merchant == "" {
		http.Error(w, "merchant field is required", http.StatusBadRequest)
		return
	}
	track, err := h.shopping.Track(req.Context(), user.ID, request.Merchant, request.OrderID)
	if err != nil {
		h.Error(w, "ShoppingTrackHandler", err)
		return
	}
	h.JSON(w, "ShoppingTrackHandler", track)
}

// История переходов
func (h *RewardsHandler) ShoppingHistoryHandler(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	history, err := h.shopping.History(req.Context(), user.ID, queryUint(req, "limit"))
	if err != nil {
		h.Error(w, "ShoppingHistoryHandler", err)
		return
	}
	h.JSON(w, "ShoppingHistoryHandler", history)
}

// контент

// Активные кампании
func (h *RewardsHandler) CampaignListHandler(w http.ResponseWriter, req *http.Request) {
	if h.content == nil {
		h.JSON(w, "CampaignListHandler", []model.Campaign{})
		return
	}
	campaigns, err := h.content.CampaignList(req.Context(), true)
	if err != nil {
		h.Error(w, "CampaignListHandler", err)
		return
	}
	h.JSON(w, "CampaignListHandler", campaigns)
}

// Активные объявления
func (h *RewardsHandler) AnnouncementListHandler(w http.ResponseWriter, req *http.Request) {
	if h.content == nil {
		h.JSON(w, "AnnouncementListHandler", []model.Announcement{})
		return
	}
	announcements, err := h.content.AnnouncementList(req.Context(), true)
	if err != nil {
		h.Error(w, "AnnouncementListHandler", err)
		return
	}
	h.JSON(w, "AnnouncementListHandler", announcements)
}
