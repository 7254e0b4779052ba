package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BreederHQ/server/internal/auth"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/offspring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlan = "01HZX3Q8W6M5V2KJ9T4B7N0BP1"

type stubOffspring struct {
	OffspringService

	schedules []offspring.PricingSchedule
	err       error
}

func (s *stubOffspring) ApplyPricing(_ context.Context, _, _ string, schedule offspring.PricingSchedule) ([]offspring.PriceChange, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.schedules = append(s.schedules, schedule)
	return []offspring.PriceChange{{OffspringID: testPup, Name: "Blue", NewCents: schedule.BaseCents}}, nil
}

func TestOffspringApplyPricing(t *testing.T) {
	params := map[string]string{"id": testPlan}

	t.Run("yaml schedule", func(t *testing.T) {
		stub := &stubOffspring{}
		h := NewOffspringHandler(stub, "test")
		body := "currency: usd\nbase_cents: 250000\nby_sex:\n  female: 275000\nadjustments:\n  - name: show prospect\n    delta_cents: 50000\n"

		w := httptest.NewRecorder()
		h.ApplyPricing(w, scopedRequest(http.MethodPost, "/", body, auth.RoleStaff, params))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		require.Len(t, stub.schedules, 1)
		assert.Equal(t, "USD", stub.schedules[0].Currency)
		assert.Equal(t, int64(275000), stub.schedules[0].BySex["female"])

		var resp struct {
			Changes []offspring.PriceChange `json:"changes"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.Len(t, resp.Changes, 1)
		assert.Equal(t, int64(250000), resp.Changes[0].NewCents)
	})

	t.Run("json schedule", func(t *testing.T) {
		stub := &stubOffspring{}
		h := NewOffspringHandler(stub, "test")

		w := httptest.NewRecorder()
		h.ApplyPricing(w, scopedRequest(http.MethodPost, "/", `{"currency":"EUR","base_cents":1000}`, auth.RoleStaff, params))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Len(t, stub.schedules, 1)
	})

	t.Run("malformed body", func(t *testing.T) {
		stub := &stubOffspring{}
		h := NewOffspringHandler(stub, "test")

		w := httptest.NewRecorder()
		h.ApplyPricing(w, scopedRequest(http.MethodPost, "/", "currency: [unterminated", auth.RoleStaff, params))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, stub.schedules)
	})

	t.Run("invalid currency", func(t *testing.T) {
		stub := &stubOffspring{}
		h := NewOffspringHandler(stub, "test")

		w := httptest.NewRecorder()
		h.ApplyPricing(w, scopedRequest(http.MethodPost, "/", "currency: dollars\nbase_cents: 10\n", auth.RoleStaff, params))
		require.Equal(t, http.StatusBadRequest, w.Code)

		var problemBody struct {
			Errors map[string]any `json:"errors"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&problemBody))
		assert.Contains(t, problemBody.Errors, "currency")
		assert.Empty(t, stub.schedules)
	})

	t.Run("unknown plan", func(t *testing.T) {
		h := NewOffspringHandler(&stubOffspring{err: errs.ErrNotFound}, "test")

		w := httptest.NewRecorder()
		h.ApplyPricing(w, scopedRequest(http.MethodPost, "/", "currency: USD\nbase_cents: 10\n", auth.RoleStaff, params))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
