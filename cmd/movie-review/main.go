package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/code-payments/movie-review/pkg/airdrop"
	"github.com/code-payments/movie-review/pkg/app"
	"github.com/code-payments/movie-review/pkg/config/env"
	"github.com/code-payments/movie-review/pkg/keypair"
	"github.com/code-payments/movie-review/pkg/review"
	"github.com/code-payments/movie-review/pkg/solana"
	"github.com/code-payments/movie-review/pkg/solana/moviereview"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer, options ...app.Option) int {
	flags := flag.NewFlagSet("movie-review", flag.ContinueOnError)
	title := flags.String("title", "", "review title (default: the configured prefix followed by a random number)")
	update := flags.Bool("update", false, "send UpdateMovieReview instead of AddMovieReview")

	options = append([]app.Option{app.WithFlagSet(flags, args)}, options...)
	return app.Run(func(ctx context.Context, config app.BaseConfig) error {
		err := submitReview(ctx, config, out, *title, *update)
		if err != nil {
			fmt.Fprintln(out, err)
		}
		return err
	}, options...)
}

func submitReview(ctx context.Context, config app.BaseConfig, out io.Writer, title string, update bool) error {
	cluster := solana.ParseCluster(config.Cluster)

	endpoint := config.RPCEndpoint
	if endpoint == "" {
		endpoint = cluster.Endpoint()
	}

	clientOpts := []solana.Option{solana.WithTimeout(config.RPCTimeout)}
	if config.SkipPreflight {
		clientOpts = append(clientOpts, solana.WithSkipPreflight())
	}
	client := solana.New(endpoint, clientOpts...)

	store := keypair.NewStore(
		env.NewStringConfig(keypair.DefaultSecretKey, ""),
		config.EnvFile,
		keypair.DefaultSecretKey,
	)
	signer, created, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "Creating %s file\n", config.EnvFile)
	}

	funder := airdrop.NewFunder(client, out, airdrop.WithEnvConfigs())
	if _, err := funder.EnsureFunded(ctx, signer.PublicKey()); err != nil {
		return err
	}

	sender := review.NewSender(client, signer, cluster, out, review.WithEnvConfigs())
	reviewArgs, err := sender.NewArgs(ctx, title)
	if err != nil {
		return err
	}

	instructionType := moviereview.InstructionTypeAddMovieReview
	if update {
		instructionType = moviereview.InstructionTypeUpdateMovieReview
	}

	receipt, err := sender.Send(ctx, instructionType, reviewArgs)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, receipt.ExplorerURL)

	if sender.ShouldVerify(ctx) {
		stored, err := sender.FetchReview(ctx, receipt.ReviewAddress)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Review at %s: %s\n", receipt.ReviewURL, stored)
	}

	fmt.Fprintln(out, "Finished successfully")
	return nil
}
