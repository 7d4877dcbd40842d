package auction

import (
	"net"
	"net/http"
	"strings"

	"github.com/seantiz/vexing/internal/model"
)

// DefaultCurrency is assumed when a request names none.
const DefaultCurrency = "USD"

// ContextFactory completes bid requests with data carried by the HTTP request.
type ContextFactory struct{}

// NewContextFactory creates a ContextFactory.
func NewContextFactory() *ContextFactory {
	return &ContextFactory{}
}

// FromRequest returns a copy of req with device, site and currency defaults
// filled in from r. Values already present in req are kept. req is not modified.
func (f *ContextFactory) FromRequest(req *model.BidRequest, r *http.Request) *model.BidRequest {
	out := *req

	device := model.Device{}
	if req.Device != nil {
		device = *req.Device
	}
	if device.UA == "" {
		device.UA = r.UserAgent()
	}
	if device.IP == "" && device.IPv6 == "" {
		if ip := clientIP(r); ip != nil {
			if ip.To4() != nil {
				device.IP = ip.String()
			} else {
				device.IPv6 = ip.String()
			}
		}
	}
	if device != (model.Device{}) {
		out.Device = &device
	}

	if req.Site != nil {
		site := *req.Site
		if site.Page == "" {
			site.Page = r.Referer()
		}
		out.Site = &site
	}

	if len(req.Cur) == 0 {
		out.Cur = []string{DefaultCurrency}
	}

	if req.Imp != nil {
		out.Imp = make([]model.Imp, len(req.Imp))
		for i, imp := range req.Imp {
			if imp.BidFloor > 0 && imp.BidFloorCur == "" {
				imp.BidFloorCur = DefaultCurrency
			}
			out.Imp[i] = imp
		}
	}

	return &out
}

// clientIP picks the originating address: the first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote address.
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}
