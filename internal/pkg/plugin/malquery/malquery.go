package malquery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/repwatch/repwatch/internal/pkg/repwatch/check"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/classifier"
	"github.com/repwatch/repwatch/internal/pkg/shared/fetch"
	log "github.com/repwatch/repwatch/internal/pkg/shared/logger"
	"github.com/repwatch/repwatch/pkg/reputation"
)

func init() {
	reputation.RegisterExtension(func() reputation.Checker { return &Query{} }, string(check.ModeQuery))
}

// Config defines one query check and its fetch settings
type Config struct {
	Check        check.Check `json:"check"`
	FetchTimeout int         `json:"fetch_timeout"`
	UserAgent    string      `json:"useragent"`
	MaxRPS       int         `json:"max_rps"`
}

// Query is a reputation plugin that fetches a per-target lookup URL
// and matches the response body against the check's content patterns
type Query struct {
	Cfg Config `json:"cfg"`
	cl  *fetch.Client
}

// Initialize implement iface
func (q *Query) Initialize(b []byte) error {
	if err := json.Unmarshal(b, &q.Cfg); err != nil {
		return err
	}
	// compiled patterns and templates don't survive JSON
	if err := q.Cfg.Check.Validate(); err != nil {
		return err
	}
	q.cl = fetch.New(time.Duration(q.Cfg.FetchTimeout)*time.Second, q.Cfg.UserAgent, q.Cfg.MaxRPS)
	return nil
}

// Supports implement iface
func (q *Query) Supports(k reputation.Kind) bool {
	return q.Cfg.Check.Supports(k)
}

// Check implement iface
func (q *Query) Check(ctx context.Context, ind reputation.Indicator) (found bool, results []reputation.Result, err error) {
	if !q.Supports(ind.Kind) {
		return
	}

	url := q.Cfg.Check.QueryURL(ind.Value)
	log.Debug(log.M{Msg: "Querying for maliciousness of " + ind.Value, Check: q.Cfg.Check.ID, Term: ind.Value})

	body, err := q.cl.Get(ctx, url)
	if err != nil {
		log.Warn(log.M{Msg: "Unable to fetch " + url + ": " + err.Error(), Check: q.Cfg.Check.ID})
		return
	}

	if classifier.Classify(string(body), q.Cfg.Check.BadPatterns(), q.Cfg.Check.GoodPatterns()) == classifier.Malicious {
		results = append(results, reputation.Result{Provider: q.Cfg.Check.Name, Term: ind.Value, Reference: url})
		found = true
	}
	return
}
