package solanatest

import (
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/movie-review/pkg/solana"
)

const (
	imageName = "solanalabs/solana"
	imageTag  = "v1.18.26"

	rpcPort = "8899/tcp"

	containerAutoKill = 180 * time.Second
	startupTimeout    = 90 * time.Second
)

// StartValidator runs a single node solana-test-validator and returns a client
// for its RPC endpoint once it is producing slots.
func StartValidator(pool *dockertest.Pool) (endpoint string, client solana.Client, teardown func(), err error) {
	teardown = func() {}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository:   imageName,
		Tag:          imageTag,
		Entrypoint:   []string{"solana-test-validator"},
		Cmd:          []string{"--ledger", "/tmp/test-ledger", "--reset", "--quiet"},
		ExposedPorts: []string{rpcPort},
	}, func(config *docker.HostConfig) {
		// set AutoRemove to true so that stopped container goes away by itself
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return "", nil, teardown, errors.Wrap(err, "failed to start solana-test-validator")
	}

	_ = resource.Expire(uint(containerAutoKill.Seconds()))

	log := logrus.StandardLogger().WithField("method", "StartValidator")

	teardown = func() {
		if err := pool.Purge(resource); err != nil {
			log.WithError(err).Errorf("failed to cleanup solana-test-validator resource")
		}
	}

	endpoint = fmt.Sprintf("http://localhost:%s", resource.GetPort(rpcPort))
	client = solana.New(endpoint, solana.WithTimeout(5*time.Second), solana.WithRetry(1, 0))

	pool.MaxWait = startupTimeout
	err = pool.Retry(func() error {
		slot, err := client.GetSlot(solana.CommitmentConfirmed)
		if err != nil {
			return err
		}
		if slot == 0 {
			return errors.New("validator has not produced a slot")
		}
		return nil
	})
	if err != nil {
		teardown()
		return "", nil, func() {}, errors.Wrap(err, "failed waiting for validator")
	}

	return endpoint, client, teardown, nil
}
