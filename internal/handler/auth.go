package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

type AuthClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func refreshSessionKey(tokenID string) string {
	return fmt.Sprintf("refresh_%s", tokenID)
}

func resetPasswordOTPKey(username string) string {
	return fmt.Sprintf("otp_%s_reset_password", username)
}

func (h *Handler) signToken(account *domain.Account, secret string, expiration time.Time, tokenID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AuthClaims{
		Role: string(account.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Subject:   account.ID,
		},
	})
	return token.SignedString([]byte(secret))
}

func (h *Handler) parseToken(tokenString string, secret string) (*AuthClaims, error) {
	claims := &AuthClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// issueTokens 生成访问令牌和刷新令牌，刷新令牌的 ID 会保存在 redis 中直到过期
func (h *Handler) issueTokens(ctx context.Context, account *domain.Account) (*TokenPair, error) {
	if h.config.JWT.AccessSecret == "" || h.config.JWT.RefreshSecret == "" {
		return nil, errors.New("JWT secrets must be defined")
	}

	accessToken, err := h.signToken(account, h.config.JWT.AccessSecret, time.Now().Add(time.Duration(h.config.JWT.AccessExpiration)*time.Minute), "")
	if err != nil {
		return nil, err
	}

	refreshTTL := time.Duration(h.config.JWT.RefreshExpiration) * time.Minute
	refreshID := uuid.NewString()
	refreshToken, err := h.signToken(account, h.config.JWT.RefreshSecret, time.Now().Add(refreshTTL), refreshID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(h.config.Redis.OperationExpiration)*time.Second)
	defer cancel()

	if err := h.redisClient.Set(ctx, refreshSessionKey(refreshID), account.ID, refreshTTL).Err(); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required,min=8"`
		Email    string `json:"email" validate:"required,email"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	alreadyRegistered := fmt.Sprintf("'%s' already registered!", req.Username)

	isExists, err := h.repository.CheckUsernameIfExists(r.Context(), req.Username)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if isExists {
		h.errorResponse(w, r, http.StatusBadRequest, alreadyRegistered)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	// 新注册的账户需要管理员激活后才能登录
	account := &domain.Account{
		Username:     req.Username,
		PasswordHash: string(hashedPassword),
		Email:        req.Email,
		Role:         domain.RoleMember,
		IsActive:     false,
	}

	if err := h.repository.CreateAccount(r.Context(), account); err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr) && pgErr.ConstraintName == "accounts_username_key":
			// 并发注册同一个用户名时由唯一约束兜底
			h.errorResponse(w, r, http.StatusBadRequest, alreadyRegistered)
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.writeJSON(w, r, http.StatusCreated, struct {
		Message string          `json:"message"`
		Account *domain.Account `json:"account"`
	}{
		Message: "Account created successfully",
		Account: account,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	// 验证用户名和密码
	account, err := h.repository.GetAccountByUsername(r.Context(), req.Username)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, http.StatusBadRequest, "Incorrect username or password!")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		switch {
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			h.errorResponse(w, r, http.StatusBadRequest, "Incorrect username or password!")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	if !account.IsActive {
		h.errorResponse(w, r, http.StatusBadRequest, "Account is not activated, please contact the admin")
		return
	}

	tokens, err := h.issueTokens(r.Context(), account)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, struct {
		Message string          `json:"message"`
		Account *domain.Account `json:"account"`
		*TokenPair
	}{
		Message:   "Logged in successfully",
		Account:   account,
		TokenPair: tokens,
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	claims, err := h.parseToken(req.RefreshToken, h.config.JWT.RefreshSecret)
	if err != nil || claims.ID == "" {
		h.errorResponse(w, r, http.StatusUnauthorized, "Invalid token")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(h.config.Redis.OperationExpiration)*time.Second)
	defer cancel()

	// 刷新令牌只能使用一次，使用后立即删除对应的会话
	accountID, err := h.redisClient.GetDel(ctx, refreshSessionKey(claims.ID)).Result()
	if err != nil {
		switch {
		case errors.Is(err, redis.Nil):
			h.errorResponse(w, r, http.StatusUnauthorized, "Session expired")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}
	if accountID != claims.Subject {
		h.errorResponse(w, r, http.StatusUnauthorized, "Invalid token")
		return
	}

	account, err := h.repository.GetAccountByID(r.Context(), accountID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, http.StatusUnauthorized, "Invalid token")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}
	if !account.IsActive {
		h.errorResponse(w, r, http.StatusBadRequest, "Account is not activated, please contact the admin")
		return
	}

	tokens, err := h.issueTokens(r.Context(), account)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	// 令牌无效时会话本来就不存在，直接视为登出成功
	claims, err := h.parseToken(req.RefreshToken, h.config.JWT.RefreshSecret)
	if err == nil && claims.ID != "" {
		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(h.config.Redis.OperationExpiration)*time.Second)
		defer cancel()

		if err := h.redisClient.Del(ctx, refreshSessionKey(claims.ID)).Err(); err != nil {
			h.internalServerError(w, r, err)
			return
		}
	}

	h.writeJSON(w, r, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

func (h *Handler) RequireResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	const sent = "A verification code has been sent by email"

	account, err := h.repository.GetAccountByUsername(r.Context(), req.Username)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// 这里虽然已经知道了用户不存在，但是为了安全起见，还是告诉客户端邮件已发送，以防止接口被滥用
			h.writeJSON(w, r, http.StatusOK, MessageResponse{Message: sent})
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	// 生成 OTP 并将 OTP 存到 redis
	otp := utils.GenerateRandomOTP()

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(h.config.Redis.OperationExpiration)*time.Second)
	defer cancel()

	if err := h.redisClient.Set(ctx, resetPasswordOTPKey(account.Username), otp, time.Duration(h.config.OTP.Expiration)*time.Second).Err(); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	mailMessage := domain.MailMessage{
		Type: domain.MailTypeResetPassword,
		To:   account.Email,
		Data: domain.ResetPasswordMailData{
			Username:   account.Username,
			OTP:        otp,
			Expiration: h.config.OTP.Expiration / 60, // 邮件中显示的过期时间以分钟为单位，而配置中以秒为单位
		},
	}

	if err := h.publishMail(mailMessage); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, MessageResponse{Message: sent})
}

func (h *Handler) ConfirmResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		OTP      string `json:"otp" validate:"required"`
		Password string `json:"password" validate:"required,min=8"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	// 检验 OTP
	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(h.config.Redis.OperationExpiration)*time.Second)
	defer cancel()

	otp, err := h.redisClient.Get(ctx, resetPasswordOTPKey(req.Username)).Result()
	if err != nil || otp != req.OTP {
		h.errorResponse(w, r, http.StatusBadRequest, "Incorrect verification code")
		return
	}

	account, err := h.repository.GetAccountByUsername(r.Context(), req.Username)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, http.StatusBadRequest, "Incorrect username!")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	account.PasswordHash = string(hashedPassword)

	if err := h.repository.UpdateAccount(r.Context(), account); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, http.StatusConflict, "Please retry")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	// 删除 OTP
	if err := h.redisClient.Del(ctx, resetPasswordOTPKey(req.Username)).Err(); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, MessageResponse{Message: "Password reset successfully"})
}

// publishMail 把邮件序列化后投递到邮件队列，由 mail worker 负责发送
func (h *Handler) publishMail(mailMessage domain.MailMessage) error {
	if h.mailChannel == nil {
		return errors.New("mail channel is not configured")
	}

	mailData, err := json.Marshal(mailMessage)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(h.config.RabbitMQ.PublishTimeout)*time.Second)
	defer cancel()

	return h.mailChannel.PublishWithContext(
		ctx,
		"",
		h.config.RabbitMQ.Queue,
		true,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        mailData,
		},
	)
}
