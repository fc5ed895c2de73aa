package transfer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/homework/internal/adapters/transfer"
	"github.com/okian/homework/internal/domain/model"
)

func TestSimulated(t *testing.T) {
	Convey("Given a fast simulated client", t, func() {
		sim := transfer.NewSimulated(transfer.WithLatencyRange(time.Millisecond, 2*time.Millisecond))

		Convey("When a valid transfer is sent", func() {
			ref, err := sim.Transfer(context.Background(), "0xabc", 600)

			Convey("Then it is confirmed with a reference", func() {
				So(err, ShouldBeNil)
				So(ref, ShouldStartWith, "sim-")
				So(sim.Calls(), ShouldEqual, 1)
			})
		})

		Convey("When the amount is not positive", func() {
			_, err := sim.Transfer(context.Background(), "0xabc", 0)

			Convey("Then nothing is attempted", func() {
				So(errors.Is(err, transfer.ErrInvalidRequest), ShouldBeTrue)
				So(sim.Calls(), ShouldEqual, 0)
			})
		})

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := sim.Transfer(ctx, "0xabc", 100)

			Convey("Then the transfer is unconfirmed", func() {
				So(errors.Is(err, model.ErrTransferUnconfirmed), ShouldBeTrue)
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})

	Convey("Given a simulated client that fails after one call", t, func() {
		sim := transfer.NewSimulated(
			transfer.WithLatencyRange(time.Millisecond, 2*time.Millisecond),
			transfer.WithFailAfter(1),
		)
		_, first := sim.Transfer(context.Background(), "0xabc", 100)
		_, second := sim.Transfer(context.Background(), "0xabc", 100)

		So(first, ShouldBeNil)
		So(errors.Is(second, model.ErrTransferFailed), ShouldBeTrue)
	})
}

func TestHTTPClient(t *testing.T) {
	Convey("Given a signer that confirms transfers", t, func() {
		var got struct {
			To     string `json:"to"`
			Amount int64  `json:"amount"`
		}
		var auth, key string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			key = r.Header.Get("Idempotency-Key")
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(`{"status":"confirmed","txHash":"0xfeed"}`))
		}))
		defer srv.Close()

		c := transfer.NewHTTPClient(srv.URL,
			transfer.WithAuthToken("s3cret"),
			transfer.WithIdempotencyKeys(func() string { return "key-1" }),
		)
		ref, err := c.Transfer(context.Background(), "0xabc", 800)

		So(err, ShouldBeNil)
		So(ref, ShouldEqual, "0xfeed")
		So(got.To, ShouldEqual, "0xabc")
		So(got.Amount, ShouldEqual, 800)
		So(auth, ShouldEqual, "Bearer s3cret")
		So(key, ShouldEqual, "key-1")
	})

	Convey("Given a signer that rejects the transfer", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "insufficient balance", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		_, err := transfer.NewHTTPClient(srv.URL).Transfer(context.Background(), "0xabc", 100)

		So(errors.Is(err, model.ErrTransferFailed), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "insufficient balance")
	})

	Convey("Given a signer that answers without confirmation", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":"pending","txHash":"0x1"}`))
		}))
		defer srv.Close()

		_, err := transfer.NewHTTPClient(srv.URL).Transfer(context.Background(), "0xabc", 100)

		So(errors.Is(err, model.ErrTransferUnconfirmed), ShouldBeTrue)
	})

	Convey("Given a signer slower than the timeout", t, func() {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		c := transfer.NewHTTPClient(srv.URL, transfer.WithTimeout(20*time.Millisecond))
		_, err := c.Transfer(context.Background(), "0xabc", 100)

		So(errors.Is(err, model.ErrTransferUnconfirmed), ShouldBeTrue)
		So(strings.Contains(err.Error(), "deadline") || strings.Contains(err.Error(), "Timeout"), ShouldBeTrue)
	})
}
