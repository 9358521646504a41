package chat

import (
	"github.com/smallbiznis/mystictxt/internal/chat/liveevents"
	"github.com/smallbiznis/mystictxt/internal/chat/repository"
	"github.com/smallbiznis/mystictxt/internal/chat/service"
	"go.uber.org/fx"
)

var Module = fx.Module("chat.service",
	fx.Provide(repository.ProvideSessions),
	fx.Provide(repository.ProvideMessages),
	fx.Provide(liveevents.NewHub),
	fx.Provide(service.NewService),
)
