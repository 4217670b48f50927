package handlers

import (
	"gorm.io/gorm"

	"github.com/vitalpath/coach-gateway/internal/chat"
	"github.com/vitalpath/coach-gateway/internal/config"
	"github.com/vitalpath/coach-gateway/internal/store/rabbitmq"
	"github.com/vitalpath/coach-gateway/internal/store/redisstore"
)

// Handler carries the process-scoped dependencies. Everything is constructed
// once in main and passed in explicitly; no package-level singletons.
type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	Redis   *redisstore.Store
	ChatSvc *chat.Service
	Rabbit  *rabbitmq.Publisher
}

func NewHandler(db *gorm.DB, cfg config.Config, r *redisstore.Store, chatSvc *chat.Service, rabbit *rabbitmq.Publisher) *Handler {
	return &Handler{DB: db, Cfg: cfg, Redis: r, ChatSvc: chatSvc, Rabbit: rabbit}
}
