// Copyright (c) 2019 Repwatch contributors, All rights reserved.
//
// This file is part of Repwatch.
//
// Repwatch is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation version 3 of the License.
//
// Repwatch is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Repwatch. If not, see <https://www.gnu.org/licenses/>.

package mallist

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"sync/atomic"
	"testing"
	"time"

	"github.com/buaazp/fasthttprouter"
	"github.com/repwatch/repwatch/internal/pkg/shared/test"
	"github.com/repwatch/repwatch/pkg/reputation"
	"github.com/valyala/fasthttp"
)

var blocklistHits int32

func mockFeeds(t *testing.T) {
	router := fasthttprouter.New()
	router.GET("/blocklist", func(ctx *fasthttp.RequestCtx) {
		atomic.AddInt32(&blocklistHits, 1)
		fmt.Fprint(ctx, "# comment line\nevil-domain.com\n10.0.0.1\n203.0.113.7\nAS64500\n")
		ctx.SetStatusCode(fasthttp.StatusOK)
	})
	router.GET("/hosts", func(ctx *fasthttp.RequestCtx) {
		fmt.Fprint(ctx, "127.0.0.1 evil-host.net\n127.0.0.1 another.org\n")
		ctx.SetStatusCode(fasthttp.StatusOK)
	})
	router.GET("/csvlist", func(ctx *fasthttp.RequestCtx) {
		fmt.Fprint(ctx, "x,203.0.113.9\nx,10.0.0.1\n")
		ctx.SetStatusCode(fasthttp.StatusOK)
	})
	router.GET("/blocklist.tsv", func(ctx *fasthttp.RequestCtx) {
		fmt.Fprint(ctx, "1\tbadhost.com\tspam\n2\t198.51.100.9\tbotnet\n")
		ctx.SetStatusCode(fasthttp.StatusOK)
	})
	_ = fasthttp.ListenAndServe("127.0.0.1:8087", router.Handler)
}

func initFromFixture(t *testing.T, name string) *List {
	d, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	b, err := ioutil.ReadFile(path.Join(d, "fixtures", name))
	if err != nil {
		t.Fatal(err)
	}
	l := &List{}
	if err := l.Initialize(b); err != nil {
		t.Fatal(err)
	}
	return l
}

func checkOne(t *testing.T, l *List, value string, kind reputation.Kind) (bool, []reputation.Result) {
	t.Helper()
	found, res, err := l.Check(context.Background(), reputation.Indicator{Value: value, Kind: kind})
	if err != nil {
		t.Fatal(err)
	}
	return found, res
}

func TestListPlain(t *testing.T) {
	_, err := test.DirEnv(false)
	if err != nil {
		t.Fatal(err)
	}

	go mockFeeds(t)
	time.Sleep(time.Second)

	l := initFromFixture(t, "list_plain.json")

	if found, res := checkOne(t, l, "203.0.113.7", reputation.KindIP); !found {
		t.Fatal("expected listed IP to be found")
	} else if res[0].Reference != "http://127.0.0.1:8087/blocklist" {
		t.Fatal("unexpected reference", res[0].Reference)
	}
	if found, _ := checkOne(t, l, "203.0.113.8", reputation.KindIP); found {
		t.Fatal("expected unlisted IP to not be found")
	}

	if found, _ := checkOne(t, l, "AS64500", reputation.KindASN); !found {
		t.Fatal("expected listed ASN to be found")
	}
	if found, _ := checkOne(t, l, "AS64501", reputation.KindASN); found {
		t.Fatal("expected unlisted ASN to not be found")
	}

	// hostname resolves through its registrable base domain
	if found, _ := checkOne(t, l, "www.evil-domain.com", reputation.KindDomain); !found {
		t.Fatal("expected subdomain of a listed domain to be found")
	}
	if found, _ := checkOne(t, l, "www.good-domain.com", reputation.KindDomain); found {
		t.Fatal("expected unlisted domain to not be found")
	}
	// no derivable base domain degrades to not-found
	if found, _ := checkOne(t, l, "localhost", reputation.KindDomain); found {
		t.Fatal("expected unresolvable hostname to not be found")
	}

	if found, _ := checkOne(t, l, "10.0.0.0/30", reputation.KindNetblock); !found {
		t.Fatal("expected netblock containing a listed IP to be found")
	}
	if found, _ := checkOne(t, l, "10.0.0.4/30", reputation.KindNetblock); found {
		t.Fatal("expected netblock without listed IPs to not be found")
	}
	if _, _, err := l.Check(context.Background(), reputation.Indicator{Value: "not-a-cidr", Kind: reputation.KindNetblock}); err == nil {
		t.Fatal("expected error for malformed netblock")
	}

	if hits := atomic.LoadInt32(&blocklistHits); hits != 1 {
		t.Fatal("expected the list to be fetched once, got", hits)
	}
}

func TestListTemplates(t *testing.T) {
	_, err := test.DirEnv(false)
	if err != nil {
		t.Fatal(err)
	}

	go mockFeeds(t)
	time.Sleep(time.Second)

	h := initFromFixture(t, "list_hosts.json")
	if found, _ := checkOne(t, h, "www.evil-host.net", reputation.KindDomain); !found {
		t.Fatal("expected hosts-file entry to match through the line pattern")
	}
	if found, _ := checkOne(t, h, "www.innocent.net", reputation.KindDomain); found {
		t.Fatal("expected unlisted hostname to not be found")
	}
	if found, _ := checkOne(t, h, "10.0.0.1", reputation.KindIP); found {
		t.Fatal("expected unsupported kind to be skipped")
	}

	c := initFromFixture(t, "list_csv.json")
	if found, _ := checkOne(t, c, "203.0.113.8/30", reputation.KindNetblock); !found {
		t.Fatal("expected netblock member extracted by the line pattern to be found")
	}
	if found, _ := checkOne(t, c, "198.51.100.0/30", reputation.KindNetblock); found {
		t.Fatal("expected netblock without extracted members to not be found")
	}
}

func TestListTSV(t *testing.T) {
	_, err := test.DirEnv(false)
	if err != nil {
		t.Fatal(err)
	}

	go mockFeeds(t)
	time.Sleep(time.Second)

	l := initFromFixture(t, "list_tsv.json")
	if found, _ := checkOne(t, l, "badhost.com", reputation.KindDomain); !found {
		t.Fatal("expected domain from TSV column to be found")
	}
	if found, _ := checkOne(t, l, "198.51.100.9", reputation.KindIP); !found {
		t.Fatal("expected IP from TSV column to be found")
	}
	if found, _ := checkOne(t, l, "198.51.100.10", reputation.KindIP); found {
		t.Fatal("expected unlisted IP to not be found")
	}
}

func TestListFetchFailure(t *testing.T) {
	_, err := test.DirEnv(false)
	if err != nil {
		t.Fatal(err)
	}

	go mockFeeds(t)
	time.Sleep(time.Second)

	l := initFromFixture(t, "list_down.json")
	found, _, err := l.Check(context.Background(), reputation.Indicator{Value: "10.0.0.1", Kind: reputation.KindIP})
	if err == nil {
		t.Fatal("expected an error when the source cannot be fetched")
	}
	if found {
		t.Fatal("expected nothing to be found on fetch failure")
	}
}

func TestRegistered(t *testing.T) {
	f := reputation.Checkers.Lookup("list")
	if f == nil {
		t.Fatal("expected list checker to be registered")
	}
	if _, ok := f().(*List); !ok {
		t.Fatal("expected factory to produce a List checker")
	}
}
