package session

import (
	"github.com/samber/do/v2"
	"github.com/sweetginger/Nyogi/internal/repository"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Machine, error) {
		repo := do.MustInvoke[repository.Repository](i)
		return NewMachine(repo), nil
	})
}
