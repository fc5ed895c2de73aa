package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/homework/internal/adapters/http/api"
	"github.com/okian/homework/internal/domain/badge"
	"github.com/okian/homework/internal/domain/curriculum"
	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/internal/domain/rewards"
	"github.com/okian/homework/internal/domain/webhook"
)

// mockDependencies records calls and returns canned results.
type mockDependencies struct {
	delivery    webhook.Result
	deliveryErr error
	gotDelivery string
	gotEvent    string
	gotSig      string

	claim    rewards.ClaimResult
	claimErr error

	distribute    rewards.DistributeResult
	distributeErr error
	gotWeek       int

	progress    model.Progress
	progressErr error

	badge    badge.Badge
	badgeErr error

	pending []string

	submission model.Submission
	submitErr  error

	link model.IdentityLink

	top     []model.ScoreEntry
	rank    model.ScoreEntry
	rankErr error
}

func (m *mockDependencies) HandleDelivery(_ context.Context, delivery, event, sig string, _ []byte) (webhook.Result, error) {
	m.gotDelivery, m.gotEvent, m.gotSig = delivery, event, sig
	return m.delivery, m.deliveryErr
}

func (m *mockDependencies) Claim(context.Context, string) (rewards.ClaimResult, error) {
	return m.claim, m.claimErr
}

func (m *mockDependencies) Distribute(_ context.Context, _ string, week int) (rewards.DistributeResult, error) {
	m.gotWeek = week
	return m.distribute, m.distributeErr
}

func (m *mockDependencies) Progress(context.Context, string) (model.Progress, error) {
	return m.progress, m.progressErr
}

func (m *mockDependencies) Badge(context.Context, string, int) (badge.Badge, error) {
	return m.badge, m.badgeErr
}

func (m *mockDependencies) Catalog() *curriculum.Catalog { return curriculum.Default() }

func (m *mockDependencies) PendingParticipants(_ context.Context, week int) ([]string, error) {
	m.gotWeek = week
	return m.pending, nil
}

func (m *mockDependencies) Submit(context.Context, string, int, string) (model.Submission, error) {
	return m.submission, m.submitErr
}

func (m *mockDependencies) LinkIdentity(_ context.Context, p, u, _ string) (model.IdentityLink, error) {
	return model.IdentityLink{ParticipantID: p, ExternalUsername: u, LinkedAt: m.link.LinkedAt}, nil
}

func (m *mockDependencies) TopN(_ context.Context, n int) ([]model.ScoreEntry, error) {
	if n > len(m.top) {
		return m.top, nil
	}
	return m.top[:n], nil
}

func (m *mockDependencies) Rank(context.Context, string) (model.ScoreEntry, error) {
	return m.rank, m.rankErr
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats(context.Context) map[string]any { return m.stats }

func newMux(deps *mockDependencies) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]any{
		"participantsScored": 2,
		"pendingRewards":     map[string]any{"entries": 3, "amount": 700},
	}},
		api.WithAdminKey("admin-key"), api.WithMaxLeaderboardLimit(50))
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody(w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

var admin = map[string]string{api.AdminHeader: "admin-key"}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("Then health serves metrics", func() {
			So(do(mux, "GET", "/healthz", "", nil).Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats are served as JSON", func() {
			w := do(mux, "GET", "/stats", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Cache-Control"), ShouldEqual, "no-store")
			body := decodeBody(w)
			So(body["participantsScored"], ShouldEqual, float64(2))
			So(body["pendingRewards"], ShouldResemble, map[string]interface{}{"entries": float64(3), "amount": float64(700)})
			So(do(mux, "POST", "/stats", "", nil).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then the curriculum lists 52 weeks with rewards", func() {
			w := do(mux, "GET", "/homework/curriculum", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			var body struct {
				Weeks []struct {
					Week        int    `json:"week"`
					Deliverable string `json:"deliverable"`
					Reward      int64  `json:"reward"`
					Milestone   bool   `json:"milestone"`
				} `json:"weeks"`
				MaxTotalReward int64 `json:"maxTotalReward"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body.Weeks, ShouldHaveLength, 52)
			So(body.Weeks[7].Reward, ShouldEqual, 600)
			So(body.Weeks[7].Milestone, ShouldBeTrue)
			So(body.Weeks[2].Deliverable, ShouldEqual, "week-03/first-repo.md")
			So(body.MaxTotalReward, ShouldEqual, 13200)
		})

		Convey("Then unknown paths are not found", func() {
			So(do(mux, "GET", "/unknown", "", nil).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then wrong methods are not found", func() {
			So(do(mux, "GET", "/homework/claim", "", nil).Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestWebhookHandler(t *testing.T) {
	Convey("Given a webhook endpoint", t, func() {
		deps := &mockDependencies{delivery: webhook.Result{Matched: 1}}
		mux := newMux(deps)
		headers := map[string]string{
			webhook.DeliveryHeader:  "d-1",
			webhook.EventHeader:     "push",
			webhook.SignatureHeader: "sha256=abc",
		}

		Convey("When a matching push arrives", func() {
			w := do(mux, "POST", "/webhooks/github", `{}`, headers)

			Convey("Then the matched count is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(w)
				So(body["ok"], ShouldEqual, true)
				So(body["matched"], ShouldEqual, float64(1))
				So(deps.gotDelivery, ShouldEqual, "d-1")
				So(deps.gotEvent, ShouldEqual, "push")
				So(deps.gotSig, ShouldEqual, "sha256=abc")
			})
		})

		Convey("When the delivery was already applied", func() {
			deps.delivery = webhook.Result{Duplicate: true}
			body := decodeBody(do(mux, "POST", "/webhooks/github", `{}`, headers))

			Convey("Then it is acknowledged as a duplicate", func() {
				So(body["duplicate"], ShouldEqual, true)
				So(body["matched"], ShouldEqual, float64(0))
			})
		})

		Convey("When nothing matches", func() {
			deps.delivery = webhook.Result{}
			body := decodeBody(do(mux, "POST", "/webhooks/github", `{}`, headers))

			Convey("Then matched is zero rather than omitted", func() {
				So(body["matched"], ShouldEqual, float64(0))
			})
		})

		Convey("When the delivery is skipped", func() {
			deps.delivery = webhook.Result{Skipped: true}
			body := decodeBody(do(mux, "POST", "/webhooks/github", `{}`, headers))

			Convey("Then skipped is reported", func() {
				So(body["skipped"], ShouldEqual, true)
				_, hasMatched := body["matched"]
				So(hasMatched, ShouldBeFalse)
			})
		})

		Convey("When the signature is rejected", func() {
			deps.deliveryErr = model.E("webhook.verify", model.KindAuth, model.ErrInvalidSignature)
			w := do(mux, "POST", "/webhooks/github", `{}`, headers)

			Convey("Then the response is 401", func() {
				So(w.Code, ShouldEqual, http.StatusUnauthorized)
				So(decodeBody(w)["code"], ShouldEqual, "unauthorized")
			})
		})
	})
}

func TestClaimHandler(t *testing.T) {
	Convey("Given a claim endpoint", t, func() {
		deps := &mockDependencies{claim: rewards.ClaimResult{TotalAmount: 800, Weeks: []int{1, 2, 8}, TransferRef: "0xfeed"}}
		mux := newMux(deps)

		Convey("When a participant claims", func() {
			w := do(mux, "POST", "/homework/claim", `{"participantAddress":"0xABC"}`, nil)

			Convey("Then the payout is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(w)
				So(body["success"], ShouldEqual, true)
				So(body["totalAmount"], ShouldEqual, float64(800))
				So(body["transferRef"], ShouldEqual, "0xfeed")
			})
		})

		Convey("When the address is blank", func() {
			w := do(mux, "POST", "/homework/claim", `{"participantAddress":"  "}`, nil)

			Convey("Then the field is named in the error", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody(w)["message"], ShouldContainSubstring, "participantAddress")
			})
		})

		Convey("When the body is not JSON", func() {
			So(do(mux, "POST", "/homework/claim", `nope`, nil).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When there is nothing to claim", func() {
			deps.claimErr = model.E("rewards.claim", model.KindState, model.ErrNothingToClaim)
			w := do(mux, "POST", "/homework/claim", `{"participantAddress":"0xabc"}`, nil)

			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeBody(w)["message"], ShouldContainSubstring, "nothing to claim")
		})

		Convey("When another claim holds the marker", func() {
			deps.claimErr = model.Ef("rewards.claim", model.KindState, model.ErrClaimInProgress, "week %d", 3)
			So(do(mux, "POST", "/homework/claim", `{"participantAddress":"0xabc"}`, nil).Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When the transfer fails", func() {
			deps.claimErr = model.E("rewards.claim", model.KindUpstream, model.ErrTransferFailed)
			w := do(mux, "POST", "/homework/claim", `{"participantAddress":"0xabc"}`, nil)

			So(w.Code, ShouldEqual, http.StatusBadGateway)
			So(decodeBody(w)["code"], ShouldEqual, "upstream_error")
		})
	})
}

func TestRewardHandler(t *testing.T) {
	Convey("Given the admin reward endpoint", t, func() {
		deps := &mockDependencies{distribute: rewards.DistributeResult{Week: 8, Amount: 600, TransferRef: "0x1"}}
		mux := newMux(deps)
		body := `{"participantAddress":"0xabc","week":8}`

		Convey("When the API key is missing", func() {
			So(do(mux, "POST", "/homework/reward", body, nil).Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When the API key is wrong", func() {
			w := do(mux, "POST", "/homework/reward", body, map[string]string{api.AdminHeader: "nope"})
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When an admin distributes week 8", func() {
			w := do(mux, "POST", "/homework/reward", body, admin)

			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gotWeek, ShouldEqual, 8)
			So(decodeBody(w)["amount"], ShouldEqual, float64(600))
		})

		Convey("When the week is out of range", func() {
			w := do(mux, "POST", "/homework/reward", `{"participantAddress":"0xabc","week":53}`, admin)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the week was already rewarded", func() {
			deps.distributeErr = model.E("rewards.distribute", model.KindState, model.ErrAlreadyRewarded)
			w := do(mux, "POST", "/homework/reward", body, admin)

			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeBody(w)["code"], ShouldEqual, "invalid_state")
		})
	})
}

func TestProgressAndBadgeHandlers(t *testing.T) {
	Convey("Given progress and badge endpoints", t, func() {
		deps := &mockDependencies{
			progress: model.Progress{ParticipantID: "0xabc", CompletedWeeks: []int{1, 2}, TotalWeeks: 52, TotalEarned: 200},
			badge:    badge.Badge{Milestone: 8, SVG: []byte("<svg/>"), ETag: `"abc"`},
		}
		mux := newMux(deps)

		Convey("When progress is requested without a participant", func() {
			So(do(mux, "GET", "/homework/progress", "", nil).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When progress is requested", func() {
			w := do(mux, "GET", "/homework/progress?participant=0xabc", "", nil)

			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w)["totalEarned"], ShouldEqual, float64(200))
		})

		Convey("When a badge is requested", func() {
			w := do(mux, "GET", "/homework/badge/8?participant=0xabc", "", nil)

			Convey("Then an immutable SVG is served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "image/svg+xml")
				So(w.Header().Get("Cache-Control"), ShouldEqual, "public, max-age=31536000, immutable")
				So(w.Body.String(), ShouldEqual, "<svg/>")
			})
		})

		Convey("When the client already holds the badge", func() {
			w := do(mux, "GET", "/homework/badge/8?participant=0xabc", "", map[string]string{"If-None-Match": `"abc"`})
			So(w.Code, ShouldEqual, http.StatusNotModified)
		})

		Convey("When the week is not a number", func() {
			So(do(mux, "GET", "/homework/badge/eight?participant=0xabc", "", nil).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a prior week is missing", func() {
			deps.badgeErr = model.Ef("badge.issue", model.KindState, model.ErrMilestoneIncomplete, "week %d not completed", 4)
			w := do(mux, "GET", "/homework/badge/8?participant=0xabc", "", nil)

			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeBody(w)["message"], ShouldContainSubstring, "week 4 not completed")
		})
	})
}

func TestAdminReadAndLinkHandlers(t *testing.T) {
	Convey("Given the admin pending and link endpoints", t, func() {
		deps := &mockDependencies{
			pending: []string{"0xa", "0xb"},
			link:    model.IdentityLink{LinkedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		}
		mux := newMux(deps)

		Convey("When the pending set is read", func() {
			w := do(mux, "GET", "/homework/pending/3", "", admin)

			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gotWeek, ShouldEqual, 3)
			So(decodeBody(w)["participants"], ShouldHaveLength, 2)
		})

		Convey("When the pending set is read without a key", func() {
			So(do(mux, "GET", "/homework/pending/3", "", nil).Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When a link is created", func() {
			w := do(mux, "POST", "/admin/links", `{"participantAddress":"0xabc","username":"alice"}`, admin)

			So(w.Code, ShouldEqual, http.StatusCreated)
			So(decodeBody(w)["username"], ShouldEqual, "alice")
		})

		Convey("When the username is missing", func() {
			w := do(mux, "POST", "/admin/links", `{"participantAddress":"0xabc"}`, admin)

			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeBody(w)["message"], ShouldContainSubstring, "username")
		})
	})
}

func TestSubmitHandler(t *testing.T) {
	Convey("Given the submit endpoint", t, func() {
		deps := &mockDependencies{submission: model.Submission{Path: "participants/alice/week-03/first-repo.md", CommitRef: "c0ffee"}}
		mux := newMux(deps)
		body := `{"participantAddress":"0xabc","week":3,"content":"# repo"}`

		Convey("When a deliverable is submitted", func() {
			w := do(mux, "POST", "/homework/submit", body, nil)

			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w)["commitRef"], ShouldEqual, "c0ffee")
		})

		Convey("When submission is not configured", func() {
			deps.submitErr = model.E("submit", model.KindInternal, model.ErrSubmissionDisabled)
			So(do(mux, "POST", "/homework/submit", body, nil).Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When the participant is not linked", func() {
			deps.submitErr = model.E("submit", model.KindState, model.ErrNotLinked)
			So(do(mux, "POST", "/homework/submit", body, nil).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestLeaderboardAndRankHandlers(t *testing.T) {
	Convey("Given leaderboard endpoints", t, func() {
		deps := &mockDependencies{
			top: []model.ScoreEntry{
				{Rank: 1, ParticipantID: "0xa", Score: 5},
				{Rank: 2, ParticipantID: "0xb", Score: 3},
			},
			rank: model.ScoreEntry{Rank: 2, ParticipantID: "0xb", Score: 3},
		}
		mux := newMux(deps)

		Convey("Then a bounded limit is honoured", func() {
			w := do(mux, "GET", "/leaderboard?limit=1", "", nil)
			var entries []model.ScoreEntry
			So(json.Unmarshal(w.Body.Bytes(), &entries), ShouldBeNil)
			So(entries, ShouldHaveLength, 1)
		})

		Convey("Then a missing limit uses the default", func() {
			So(do(mux, "GET", "/leaderboard", "", nil).Code, ShouldEqual, http.StatusOK)
		})

		for _, limit := range []string{"0", "-1", "abc", "51"} {
			Convey(fmt.Sprintf("Then limit=%s is rejected", limit), func() {
				So(do(mux, "GET", "/leaderboard?limit="+limit, "", nil).Code, ShouldEqual, http.StatusBadRequest)
			})
		}

		Convey("Then a rank is returned", func() {
			w := do(mux, "GET", "/rank/0xb", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w)["rank"], ShouldEqual, float64(2))
		})

		Convey("Then an unknown participant is 404", func() {
			deps.rankErr = model.ErrNotFound
			So(do(mux, "GET", "/rank/0xzz", "", nil).Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
