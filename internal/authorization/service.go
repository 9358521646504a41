package authorization

import (
	"context"

	"github.com/smallbiznis/mystictxt/internal/auth"
)

type Service interface {
	Authorize(ctx context.Context, actor auth.Actor, object string, action string) error
}
