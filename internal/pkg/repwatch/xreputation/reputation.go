package xreputation

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/repwatch/repwatch/internal/pkg/repwatch/check"
	"github.com/repwatch/repwatch/internal/pkg/shared/apm"
	"github.com/repwatch/repwatch/internal/pkg/shared/cache"
	log "github.com/repwatch/repwatch/internal/pkg/shared/logger"
	"github.com/repwatch/repwatch/pkg/reputation"
)

var (
	// Enabled mark whether reputation lookup is enabled
	Enabled                 bool
	resCache                *cache.Cache
	checkFileGlob           = "checks_*.json"
	maxSecondToWaitForCheck = time.Duration(5)
	plugins                 = reputation.Checkers
	checkers                = []BoundChecker{}
)

// BoundChecker is one configured check bound to an initialized
// checker instance
type BoundChecker struct {
	reputation.Checker
	Name string
	ID   string
}

// Settings carries the runtime knobs propagated into every checker
type Settings struct {
	FetchTimeout int
	UserAgent    string
	MaxRPS       int
	CacheMinutes int
}

// pluginConfig is the wire form handed to Checker.Initialize. It
// mirrors the Config struct of the built-in checker plugins.
type pluginConfig struct {
	Check        check.Check `json:"check"`
	FetchTimeout int         `json:"fetch_timeout"`
	UserAgent    string      `json:"useragent"`
	MaxRPS       int         `json:"max_rps"`
	CacheMinutes int         `json:"cache_minutes"`
}

// Init loads check config files from confDir and binds each enabled
// check to its own checker instance, so checks of the same type never
// share state
func Init(confDir string, cacheDuration int, s Settings) error {
	res, total, err := check.LoadFromFile(confDir, checkFileGlob)
	if err != nil {
		return err
	}
	resCache, err = cache.New("reputation", cacheDuration, 0)
	if err != nil {
		return err
	}

	for _, c := range res.Checks {
		if !c.Enabled {
			log.Debug(log.M{Msg: "Skipping disabled check", Check: c.ID})
			continue
		}
		f := plugins.Lookup(string(c.Mode))
		if f == nil {
			log.Warn(log.M{Msg: "Cannot find checker plugin " + string(c.Mode), Check: c.ID})
			continue
		}
		cfg := pluginConfig{
			Check:        c,
			FetchTimeout: s.FetchTimeout,
			UserAgent:    s.UserAgent,
			MaxRPS:       s.MaxRPS,
			CacheMinutes: s.CacheMinutes,
		}
		b, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		p := f()
		if err := p.Initialize(b); err != nil {
			log.Warn(log.M{Msg: "Cannot initialize checker plugin " + string(c.Mode) + ": " + err.Error(), Check: c.ID})
			continue
		}
		log.Info(log.M{Msg: "Adding reputation check " + c.Name, Check: c.ID})
		checkers = append(checkers, BoundChecker{p, c.Name, c.ID})
	}

	n := len(checkers)
	if n > 0 {
		Enabled = true
	}
	log.Info(log.M{Msg: "Loaded " + strconv.Itoa(n) + " of " + strconv.Itoa(total) + " reputation checks."})
	return nil
}

// Checkers returns the bound checkers in configuration order
func Checkers() []BoundChecker {
	res := make([]BoundChecker, len(checkers))
	copy(res, checkers)
	return res
}

// Lookup runs one bound checker against ind, bounded by the lookup
// timeout and traced when apm is enabled
func Lookup(v BoundChecker, ind reputation.Indicator) (found bool, results []reputation.Result, err error) {
	var tx *apm.Transaction
	if apm.Enabled() {
		tx = apm.StartTransaction("Reputation Lookup", "Repwatch", nil)
		tx.SetCustom("term", ind.Value)
		tx.SetCustom("kind", string(ind.Kind))
		tx.SetCustom("check", v.ID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*maxSecondToWaitForCheck)
	defer cancel()

	found, results, err = v.Check(ctx, ind)

	if apm.Enabled() {
		switch {
		case err != nil:
			tx.Result(err.Error())
		case found:
			tx.Result("Reputation match found")
		default:
			tx.Result("Reputation match not found")
		}
		tx.End()
	}
	return
}

// CheckTerm runs ind through every applicable check and caches the
// combined result. Checks that error are skipped, and the result is
// only cached when at least one check completed.
func CheckTerm(ind reputation.Indicator) (found bool, results []reputation.Result) {
	term := string(ind.Kind) + ":" + ind.Value

	if res, err := resCache.Get(term); err == nil {
		if string(res) == "n/f" {
			log.Debug(log.M{Msg: "Returning cache entry (not found)", Term: ind.Value})
			return
		}
		err := json.Unmarshal(res, &results)
		if err == nil {
			log.Debug(log.M{Msg: "Returning cache entry (found)", Term: ind.Value})
			found = true
			return
		}
	}

	// flag to store cache only on successful query
	successQuery := false

	for _, v := range checkers {
		if !v.Supports(ind.Kind) {
			continue
		}
		f, r, err := Lookup(v, ind)
		if err != nil {
			log.Warn(log.M{Msg: "Error received from reputation check " + v.Name + ": " + err.Error(), Check: v.ID})
			continue
		}
		successQuery = true
		if f {
			found = true
			results = append(results, r...)
		}
	}

	if !successQuery {
		return
	}

	if found {
		b, err := json.Marshal(results)
		if err == nil {
			resCache.Set(term, b)
			log.Debug(log.M{Msg: "Storing reputation result in cache", Term: ind.Value})
		}
	} else {
		resCache.Set(term, []byte("n/f"))
		log.Debug(log.M{Msg: "Storing reputation not found result in cache", Term: ind.Value})
	}
	return
}
