package auction

import (
	"fmt"

	"github.com/seantiz/vexing/internal/model"
)

// Validator checks bid requests for structural errors.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns one message per problem found in req, in field order.
// An empty result means the request is valid.
func (v *Validator) Validate(req *model.BidRequest) []string {
	var errs []string

	if req.ID == "" {
		errs = append(errs, `request missing required field: "id"`)
	}
	if req.TMax < 0 {
		errs = append(errs, "request.tmax must be non-negative")
	}
	switch {
	case req.Site == nil && req.App == nil:
		errs = append(errs, `request must contain exactly one of "site" or "app"`)
	case req.Site != nil && req.App != nil:
		errs = append(errs, `request must not contain both "site" and "app"`)
	}

	if len(req.Imp) == 0 {
		errs = append(errs, "request.imp must contain at least one element")
	}
	seen := make(map[string]int, len(req.Imp))
	for i, imp := range req.Imp {
		if imp.ID == "" {
			errs = append(errs, fmt.Sprintf(`request.imp[%d] missing required field: "id"`, i))
		} else if first, ok := seen[imp.ID]; ok {
			errs = append(errs, fmt.Sprintf(`request.imp[%d].id and request.imp[%d].id are both %q. Imp IDs must be unique`, first, i, imp.ID))
		} else {
			seen[imp.ID] = i
		}
		if imp.Banner == nil && imp.Video == nil {
			errs = append(errs, fmt.Sprintf(`request.imp[%d] must contain at least one of "banner" or "video"`, i))
		}
		if imp.BidFloor < 0 {
			errs = append(errs, fmt.Sprintf("request.imp[%d].bidfloor must be non-negative", i))
		}
	}

	return errs
}
