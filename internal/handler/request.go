package handler

import (
	"strings"

	"github.com/openclaw/match-relay-go/internal/model"
)

type filtersRequest struct {
	Gender    string   `json:"gender" validate:"omitempty,oneof=male female other"`
	Countries []string `json:"countries" validate:"omitempty,max=32,dive,iso3166_1_alpha2"`
}

type profileRequest struct {
	Gender  string `json:"gender" validate:"omitempty,oneof=male female other"`
	Country string `json:"country" validate:"omitempty,iso3166_1_alpha2"`
}

type enqueueRequest struct {
	Tier    model.Tier     `json:"tier" validate:"omitempty,oneof=free paid"`
	Filters filtersRequest `json:"filters"`
	Profile profileRequest `json:"profile"`
}

// normalize folds case so validation and matching see canonical values.
func (req *enqueueRequest) normalize() {
	req.Tier = model.Tier(strings.ToLower(strings.TrimSpace(string(req.Tier))))
	req.Filters.Gender = strings.ToLower(strings.TrimSpace(req.Filters.Gender))
	for i, c := range req.Filters.Countries {
		req.Filters.Countries[i] = strings.ToUpper(strings.TrimSpace(c))
	}
	req.Profile.Gender = strings.ToLower(strings.TrimSpace(req.Profile.Gender))
	req.Profile.Country = strings.ToUpper(strings.TrimSpace(req.Profile.Country))
}

func (req *enqueueRequest) ticket(identity string) model.Ticket {
	tier := req.Tier
	if tier == "" {
		tier = model.TierFree
	}
	return model.Ticket{
		Identity: identity,
		Tier:     tier,
		Filters: model.Filters{
			Gender:    req.Filters.Gender,
			Countries: req.Filters.Countries,
		},
		Profile: model.Profile{
			Gender:  req.Profile.Gender,
			Country: req.Profile.Country,
		},
	}
}

type teardownRequest struct {
	// At is the teardown time in unix milliseconds. Zero means now.
	At int64 `json:"at" validate:"gte=0"`
}
