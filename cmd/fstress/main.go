// fstress puts load on a folio server.
//
// It creates entities from many goroutines at once, moves each through the
// publishing workflow, asks the server to rebuild its bundles, and then
// syncs the public scope the way a client would. The token must belong to a
// superadmin, since only superadmins approve.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ndlib/folio/client"
	"github.com/ndlib/folio/entity"
	"github.com/ndlib/folio/scope"
	"github.com/ndlib/folio/util"
)

type stresser struct {
	log   *zap.Logger
	conn  *client.Connection
	typ   string
	org   string
	fails int64
}

func main() {
	flags := pflag.NewFlagSet("fstress", pflag.ExitOnError)
	numGoroutines := flags.IntP("goroutines", "n", 100, "number of goroutines")
	count := flags.IntP("count", "c", 1000, "number of entities to create")
	urlpath := flags.String("url", "http://localhost:14000", "base url of service to test")
	token := flags.String("token", "", "api key to use")
	typ := flags.String("type", "event", "entity type to create")
	org := flags.String("org", "", "organization to create entities in")
	flags.Parse(os.Args[1:])

	log, _ := zap.NewDevelopment()
	defer log.Sync()

	s := &stresser{
		log:  log,
		conn: &client.Connection{HostURL: *urlpath, Token: *token},
		typ:  *typ,
		org:  *org,
	}
	ctx := context.Background()
	start := time.Now()
	s.run(ctx, *numGoroutines, *count)
	log.Info("created entities",
		zap.Int("count", *count),
		zap.Int64("failures", atomic.LoadInt64(&s.fails)),
		zap.Duration("elapsed", time.Since(start)))

	start = time.Now()
	report, err := s.conn.Rebuild(ctx)
	if err != nil {
		log.Fatal("rebuild", zap.Error(err))
	}
	log.Info("rebuilt",
		zap.Int("bundles", len(report.Bundles)),
		zap.Int("manifests", len(report.Manifests)),
		zap.Duration("elapsed", time.Since(start)))

	start = time.Now()
	session := client.NewSession(*urlpath, nil, "", scope.Public{})
	session.Log = log
	if _, err := session.Init(ctx); err != nil {
		log.Fatal("sync", zap.Error(err))
	}
	for _, id := range session.TypeIDs() {
		b, _ := session.Bundle(id)
		log.Info("bundle", zap.String("type", id), zap.Int("entities", len(b.Entities)))
	}
	log.Info("synced", zap.Duration("elapsed", time.Since(start)))

	if atomic.LoadInt64(&s.fails) > 0 {
		os.Exit(1)
	}
}

// run creates count entities using at most n concurrent requests.
func (s *stresser) run(ctx context.Context, n, count int) {
	var wg sync.WaitGroup
	gate := util.NewGate(n)
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("stress %05d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			gate.Enter()
			defer gate.Leave()
			if err := s.publishOne(ctx, name); err != nil {
				atomic.AddInt64(&s.fails, 1)
				s.log.Error("entity", zap.String("name", name), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

// publishOne creates an entity, edits it a random number of times, and
// then submits and approves it.
func (s *stresser) publishOne(ctx context.Context, name string) error {
	starttime := time.Now()
	e, err := s.conn.CreateEntity(ctx, entity.CreateInput{
		EntityTypeID:   s.typ,
		OrganizationID: s.org,
		Data:           entity.Data{"name": entity.StringValue(name)},
	})
	if err != nil {
		return err
	}
	edits := rand.Intn(4)
	for i := 0; i < edits; i++ {
		e, err = s.conn.UpdateEntity(ctx, e.ID, entity.UpdateInput{
			Data:            entity.Data{"name": entity.StringValue(fmt.Sprintf("%s edit %d", name, i))},
			ExpectedVersion: e.Version,
		})
		if err != nil {
			return err
		}
	}
	for _, action := range []entity.Action{entity.ActionSubmit, entity.ActionApprove} {
		e, err = s.conn.Transition(ctx, e.ID, action, "")
		if err != nil {
			return err
		}
	}
	s.log.Debug("published",
		zap.String("id", e.ID),
		zap.Int("version", e.Version),
		zap.Duration("elapsed", time.Since(starttime)))
	return nil
}
