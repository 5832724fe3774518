package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository/memory"
)

func oid(n int) types.ObjectID {
	return types.ObjectID(fmt.Sprintf("%040x", n+1))
}

func TestConcurrentDistinctRefUpdates(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	gt.NoError(t, repo.CreateRepository(ctx, &model.Repository{Name: "web"}))

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := types.RefName(fmt.Sprintf("refs/heads/feature-%d", i))
			errs[i] = repo.CompareAndSwapRef(ctx, "web", name, types.ZeroObjectID, oid(i))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		gt.NoError(t, err)
		ref := gt.R1(repo.GetRef(ctx, "web", types.RefName(fmt.Sprintf("refs/heads/feature-%d", i)))).NoError(t)
		gt.Equal(t, ref.Target, oid(i))
	}
}

func TestConcurrentSameRefSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	gt.NoError(t, repo.CreateRepository(ctx, &model.Repository{Name: "web"}))
	gt.NoError(t, repo.CompareAndSwapRef(ctx, "web", "refs/heads/main", types.ZeroObjectID, oid(0)))

	// All racers swap from the same old value; exactly one may win.
	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.CompareAndSwapRef(ctx, "web", "refs/heads/main", oid(0), oid(100+i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		gt.True(t, errors.Is(err, types.ErrReferenceConflict))
	}
	gt.Equal(t, winners, 1)

	ref := gt.R1(repo.GetRef(ctx, "web", "refs/heads/main")).NoError(t)
	gt.True(t, ref.Target != oid(0))
}
