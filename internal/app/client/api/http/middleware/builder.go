package middleware

import (
	"github.com/danielgtaylor/huma/v2"
)

// Container накапливает мидлвари для очередного обработчика
type Container struct {
	huma.Middlewares
}

// NewContainer создает пустой контейнер
func NewContainer() *Container {
	return &Container{
		Middlewares: make(huma.Middlewares, 0),
	}
}

// Add добавляет мидлварь в конец цепочки
func (mc *Container) Add(middleware func(ctx huma.Context, next func(huma.Context))) *Container {
	mc.Middlewares = append(mc.Middlewares, middleware)
	return mc
}

// GetAllAndClear отдает накопленную цепочку и начинает новую
func (mc *Container) GetAllAndClear() huma.Middlewares {
	result := mc.Middlewares
	mc.Middlewares = nil
	return result
}
