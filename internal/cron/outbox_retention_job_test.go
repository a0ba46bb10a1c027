package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/meiduo/mall-backend/pkg/logger"
)

func TestOutboxRetentionJobUsesRetentionWindow(t *testing.T) {
	now := time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPurger{}
	job := newOutboxRetentionJob(t, repo, 0)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := now.AddDate(0, 0, -defaultOutboxRetentionDays)
	if !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
	if repo.calls != 1 {
		t.Fatalf("expected one purge, got %d", repo.calls)
	}
}

func TestOutboxRetentionJobHonorsConfiguredDays(t *testing.T) {
	now := time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPurger{}
	job := newOutboxRetentionJob(t, repo, 7)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.AddDate(0, 0, -7); !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := newOutboxRetentionJob(t, &fakeOutboxPurger{err: errors.New("boom")}, 0)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewOutboxRetentionJobRequiresDeps(t *testing.T) {
	if _, err := NewOutboxRetentionJob(OutboxRetentionJobParams{}); err == nil {
		t.Fatal("expected error without logger")
	}
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxPurger, days int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:        logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		DB:            passthroughTx{},
		Repository:    repo,
		RetentionDays: days,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	return job.(*outboxRetentionJob)
}

type fakeOutboxPurger struct {
	cutoff time.Time
	calls  int
	err    error
}

func (f *fakeOutboxPurger) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
