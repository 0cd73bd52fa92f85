package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                   "/",
		"/metrics":                           "/metrics",
		"/v1/bookings":                       "/v1/bookings",
		"/v1/bookings/01ABC":                 "/v1/bookings/:id",
		"/v1/bookings/01ABC/history":         "/v1/bookings/:id/history",
		"/v1/venues/01ABC/approve":           "/v1/venues/:id/approve",
		"/v1/users/01ABC/ban":                "/v1/users/:id/ban",
		"/v1/owners/01ABC/dashboard":         "/v1/owners/:id/dashboard",
		"/v1/reports/01ABC/resolve":          "/v1/reports/:id/resolve",
		"/v1/stats/most-active-sports":       "/v1/stats/most-active-sports",
		"/v1/stats/booking-activity?days=30": "/v1/stats/booking-activity",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
