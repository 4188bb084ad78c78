package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// WebAppAuthMiddleware проверяет initData по токену бота.
func WebAppAuthMiddleware(botToken string) func(http.Handler) http.Handler {
	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	key := secret.Sum(nil)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			initData := r.URL.Query().Get("init_data")
			if initData == "" {
				initData = r.Header.Get("X-Telegram-Init-Data")
			}
			if initData == "" {
				http.Error(w, "init_data отсутствует", http.StatusUnauthorized)
				return
			}
			if !validateInitData(initData, key) {
				http.Error(w, "подпись недействительна", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validateInitData(initData string, secret []byte) bool {
	parts := strings.Split(initData, "&")
	var hash string
	filtered := parts[:0]
	for _, part := range parts {
		if strings.HasPrefix(part, "hash=") {
			hash = strings.TrimPrefix(part, "hash=")
			continue
		}
		filtered = append(filtered, part)
	}
	if hash == "" {
		return false
	}
	sort.Strings(filtered)
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(strings.Join(filtered, "\n")))
	expected, err := hex.DecodeString(hash)
	if err != nil {
		return false
	}
	return hmac.Equal(h.Sum(nil), expected)
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}

// WriteJSON отправляет JSON-ответ.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
