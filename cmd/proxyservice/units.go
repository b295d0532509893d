package main

import (
	"github.com/user/proxyservice/internal/binder"
	"github.com/user/proxyservice/internal/entity"
	"github.com/user/proxyservice/pkg/config"
)

func unitFromConfig(uc config.UnitConfig) entity.Unit {
	u := entity.DefaultUnit(uc.Name, uc.TargetID)
	u.Algorithm = entity.ParseAlgorithm(uc.Algorithm)
	u.Filters = entity.Filters{
		Length:    uc.Length,
		Profile:   uc.Profile,
		Locations: uc.Locations,
		Types:     uc.Types,
		Providers: uc.Providers,
		IgnoreIPs: uc.IgnoreIPs,
	}
	if uc.BlockedSelector != "" {
		u.CheckResponse = binder.HTMLMatches(uc.BlockedSelector)
	}
	return u
}
