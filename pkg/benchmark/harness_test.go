package benchmark

import (
	"testing"

	"github.com/agentsea/taskara/pkg/authz"
	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/agentsea/taskara/pkg/promptstore"
	"github.com/agentsea/taskara/pkg/review"
	"github.com/agentsea/taskara/pkg/reviewstore"
	"github.com/agentsea/taskara/pkg/store"
	"github.com/agentsea/taskara/pkg/task"
	"github.com/agentsea/taskara/pkg/threadstore"
	"github.com/agentsea/taskara/pkg/vault"
	testdb "github.com/agentsea/taskara/test/database"
)

type harness struct {
	svc       *Service
	principal authz.Principal
}

func newTestHarness(t *testing.T) *harness {
	t.Helper()
	client := testdb.NewTestClient(t)
	db := client.DB()

	v, err := vault.New(make([]byte, vault.KeySize))
	if err != nil {
		t.Fatalf("construct vault: %v", err)
	}

	st := store.New(db)
	threads := threadstore.New(db)
	prompts := promptstore.New(db)
	episodes := episodestore.New(db)
	reviews := reviewstore.New(db)
	engine := review.New(st, reviews, episodes)
	tasks := task.New(st, threads, prompts, episodes, reviews, engine, v)

	svc := New(st, tasks, nil, nil)
	return &harness{svc: svc, principal: authz.Principal{Email: "tom@myspace.com"}}
}
