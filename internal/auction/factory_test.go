package auction

import (
	"net/http/httptest"
	"testing"

	"github.com/seantiz/vexing/internal/model"
)

func TestFromRequestFillsFromHTTP(t *testing.T) {
	r := httptest.NewRequest("POST", "/openrtb2/auction", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("User-Agent", "test-agent")
	r.Header.Set("Referer", "https://example.com/page")

	req := &model.BidRequest{
		ID:   "r1",
		Site: &model.Site{Domain: "example.com"},
		Imp:  []model.Imp{{ID: "i1", BidFloor: 1.5}, {ID: "i2"}},
	}

	got := NewContextFactory().FromRequest(req, r)

	if got.Device == nil || got.Device.UA != "test-agent" || got.Device.IP != "10.0.0.1" {
		t.Errorf("Device = %+v", got.Device)
	}
	if got.Site.Page != "https://example.com/page" || got.Site.Domain != "example.com" {
		t.Errorf("Site = %+v", got.Site)
	}
	if len(got.Cur) != 1 || got.Cur[0] != "USD" {
		t.Errorf("Cur = %v, want [USD]", got.Cur)
	}
	if got.Imp[0].BidFloorCur != "USD" {
		t.Errorf("Imp[0].BidFloorCur = %q, want USD", got.Imp[0].BidFloorCur)
	}
	if got.Imp[1].BidFloorCur != "" {
		t.Errorf("Imp[1].BidFloorCur = %q, want empty without a floor", got.Imp[1].BidFloorCur)
	}

	if req.Device != nil || req.Site.Page != "" || req.Cur != nil || req.Imp[0].BidFloorCur != "" {
		t.Error("input request was modified")
	}
}

func TestFromRequestKeepsExistingValues(t *testing.T) {
	r := httptest.NewRequest("POST", "/openrtb2/auction", nil)
	r.Header.Set("User-Agent", "header-agent")
	r.Header.Set("Referer", "https://referer.example")

	req := &model.BidRequest{
		ID:     "r1",
		App:    &model.App{Bundle: "com.example"},
		Device: &model.Device{UA: "payload-agent", IP: "1.2.3.4"},
		Cur:    []string{"EUR"},
	}

	got := NewContextFactory().FromRequest(req, r)
	if got.Device.UA != "payload-agent" || got.Device.IP != "1.2.3.4" {
		t.Errorf("Device = %+v", got.Device)
	}
	if got.Site != nil {
		t.Errorf("Site = %+v, want nil for app requests", got.Site)
	}
	if got.Cur[0] != "EUR" {
		t.Errorf("Cur = %v", got.Cur)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		realIP string
		remote string
		want   string
	}{
		{"forwarded first hop", "203.0.113.7, 10.0.0.2", "", "10.0.0.1:1", "203.0.113.7"},
		{"real ip", "", "198.51.100.3", "10.0.0.1:1", "198.51.100.3"},
		{"bad forwarded falls through", "garbage", "", "10.0.0.1:1", "10.0.0.1"},
		{"remote only", "", "", "192.0.2.1:8080", "192.0.2.1"},
		{"ipv6 remote", "", "", "[2001:db8::1]:443", "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			ip := clientIP(r)
			if ip == nil || ip.String() != tt.want {
				t.Errorf("clientIP = %v, want %s", ip, tt.want)
			}
		})
	}
}

func TestFromRequestIPv6(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	r.RemoteAddr = "[2001:db8::1]:443"

	got := NewContextFactory().FromRequest(&model.BidRequest{ID: "r"}, r)
	if got.Device == nil || got.Device.IPv6 != "2001:db8::1" || got.Device.IP != "" {
		t.Errorf("Device = %+v", got.Device)
	}
}
