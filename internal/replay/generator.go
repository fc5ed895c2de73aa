package replay

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/homework/internal/domain/curriculum"
	"github.com/okian/homework/internal/domain/webhook"
)

const addressBytes = 20

// randomWeeks returns a uniform value in [1, maxWeeks] using crypto/rand.
func randomWeeks(maxWeeks int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxWeeks)))
	if err != nil {
		return 1
	}
	return int(n.Int64()) + 1
}

func randomAddress() string {
	b := make([]byte, addressBytes)
	if _, err := rand.Read(b); err != nil {
		id := uuid.New()
		copy(b, id[:])
	}
	return "0x" + hex.EncodeToString(b)
}

// Generate creates n participants, each with one push covering weeks 1..k.
func Generate(cfg *Config, catalog *curriculum.Catalog) ([]Participant, error) {
	maxWeeks := cfg.MaxWeeks
	if maxWeeks <= 0 || maxWeeks > catalog.Len() {
		maxWeeks = catalog.Len()
	}
	out := make([]Participant, cfg.Participants)
	for i := range out {
		p := Participant{
			Address:    randomAddress(),
			Username:   "replay-" + strings.SplitN(uuid.NewString(), "-", 2)[0],
			Weeks:      randomWeeks(maxWeeks),
			DeliveryID: uuid.NewString(),
		}
		body, err := PushBody(cfg.PathPrefix, p.Username, catalog, p.Weeks)
		if err != nil {
			return nil, fmt.Errorf("participant %d: %w", i, err)
		}
		p.Body = body
		out[i] = p
	}
	return out, nil
}

// PushBody builds a push payload adding the deliverables of weeks 1..weeks
// under the participant folder of username.
func PushBody(prefix, username string, catalog *curriculum.Catalog, weeks int) ([]byte, error) {
	if prefix == "" {
		prefix = webhook.DefaultPathPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	files := make([]string, 0, weeks)
	for w := 1; w <= weeks; w++ {
		e, ok := catalog.Lookup(w)
		if !ok {
			return nil, fmt.Errorf("week %d not in catalog", w)
		}
		files = append(files, prefix+username+"/"+e.Deliverable)
	}
	sha := strings.ReplaceAll(uuid.NewString(), "-", "")
	ev := webhook.PushEvent{
		After:   sha,
		Commits: []webhook.Commit{{ID: sha, Added: files}},
	}
	ev.Pusher.Name = username
	return json.Marshal(ev)
}
