package commands

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"praman/internal/did"
	"praman/internal/vc/models"
	vcservice "praman/internal/vc/service"
	"praman/internal/vc/signer"
	vcstore "praman/internal/vc/store"
)

const (
	countFlagName  = "count"
	countFlagUsage = "Number of derivations and credentials per phase."

	workersFlagName  = "workers"
	workersFlagUsage = "Concurrent workers. Defaults to GOMAXPROCS."
)

// PhaseResult reports the throughput of one benchmark phase.
type PhaseResult struct {
	Phase      string        `json:"phase"`
	Operations int           `json:"operations"`
	Elapsed    time.Duration `json:"elapsedNs"`
	PerSecond  float64       `json:"perSecond"`
}

// GetBenchCmd returns the command that measures derivation and credential
// throughput in process.
func GetBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure DID derivation and credential issue/verify throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			count, err := cmd.Flags().GetInt(countFlagName)
			if err != nil {
				return err
			}
			workers, err := cmd.Flags().GetInt(workersFlagName)
			if err != nil {
				return err
			}
			if count <= 0 {
				return fmt.Errorf("--%s must be positive", countFlagName)
			}
			if workers <= 0 {
				workers = runtime.GOMAXPROCS(0)
			}
			deriver, err := deriverFromFlags(cmd)
			if err != nil {
				return err
			}

			results, err := runBench(cmd.Context(), deriver, count, workers)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}

	cmd.Flags().Int(countFlagName, 10000, countFlagUsage)
	cmd.Flags().Int(workersFlagName, 0, workersFlagUsage)
	addDeriverFlags(cmd)
	return cmd
}

func runBench(ctx context.Context, deriver *did.Deriver, count, workers int) ([]PhaseResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	seed, err := signer.GenerateSeed()
	if err != nil {
		return nil, err
	}
	holder := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)

	subjects := make([]did.DID, count)
	derive, err := timed("derive", count, func() error {
		return fanOut(ctx, count, workers, func(i int) error {
			d, err := deriver.DeriveBytes(holder, fmt.Sprintf("bench-device-%d", i))
			subjects[i] = d
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	sg, err := signer.New(signer.AlgEdDSA, seed)
	if err != nil {
		return nil, err
	}
	issuerDID, err := deriver.DeriveBytes(sg.PublicKey().Bytes, did.IssuerDeviceID)
	if err != nil {
		return nil, err
	}
	svc := vcservice.NewService(sg, issuerDID, vcstore.NewInMemoryStore())

	credentials := make([]*models.Credential, count)
	issue, err := timed("issue", count, func() error {
		return fanOut(ctx, count, workers, func(i int) error {
			c, err := svc.Issue(ctx, models.IssueCommand{
				SubjectDID: subjects[i].String(),
				Claims:     models.Claims{"ageOver18": true},
			})
			credentials[i] = c
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	verify, err := timed("verify", count, func() error {
		return fanOut(ctx, count, workers, func(i int) error {
			if res := svc.Verify(ctx, credentials[i], sg.PublicKey()); !res.Valid {
				return fmt.Errorf("credential %d failed verification: %s", i, res.Reason)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return []PhaseResult{derive, issue, verify}, nil
}

func fanOut(ctx context.Context, count, workers int, fn func(i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range count {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(i)
		})
	}
	return g.Wait()
}

func timed(phase string, ops int, fn func() error) (PhaseResult, error) {
	start := time.Now()
	if err := fn(); err != nil {
		return PhaseResult{}, fmt.Errorf("%s: %w", phase, err)
	}
	elapsed := time.Since(start)
	return PhaseResult{
		Phase:      phase,
		Operations: ops,
		Elapsed:    elapsed,
		PerSecond:  float64(ops) / elapsed.Seconds(),
	}, nil
}
