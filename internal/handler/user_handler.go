package handler

import (
	"encoding/json"
	"net/http"

	"matrix-bank/internal/apperrors"
	"matrix-bank/internal/service"
)

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Fullname string `json:"fullname"`
}

type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Fullname string `json:"fullname"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.KindValidation, apperrors.InvalidInput,
			"invalid request body").WithDetails(err.Error()))
		return
	}

	user, err := h.userService.Register(req.Username, req.Password, req.Email, req.Fullname)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, UserResponse{
		ID:       user.ID.String(),
		Username: user.Username,
		Email:    user.Email,
		Fullname: user.Fullname,
	})
}
