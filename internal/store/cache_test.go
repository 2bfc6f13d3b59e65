package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
)

type countingDirectory struct {
	departmentCalls int
	agentCalls      int
	err             error
}

func (d *countingDirectory) ListDepartments(context.Context) ([]model.Department, error) {
	d.departmentCalls++
	if d.err != nil {
		return nil, d.err
	}
	return []model.Department{{ID: "d1", Name: "Sales"}}, nil
}

func (d *countingDirectory) ListAgents(context.Context) ([]model.Agent, error) {
	d.agentCalls++
	if d.err != nil {
		return nil, d.err
	}
	return []model.Agent{{ID: "a1", Name: "Ana", DepartmentIDs: []string{"d1"}}}, nil
}

func TestCachedDirectory_BoundsRequestVolume(t *testing.T) {
	inner := &countingDirectory{}
	dir := Cached(inner, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := dir.ListDepartments(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if inner.departmentCalls != 1 {
		t.Errorf("backing store hit %d times, want 1", inner.departmentCalls)
	}
}

func TestCachedDirectory_ErrorNotCached(t *testing.T) {
	inner := &countingDirectory{err: errors.New("down")}
	dir := Cached(inner, time.Minute)
	ctx := context.Background()

	if _, err := dir.ListDepartments(ctx); err == nil {
		t.Fatal("want error")
	}
	inner.err = nil
	deps, err := dir.ListDepartments(ctx)
	if err != nil || len(deps) != 1 {
		t.Fatalf("recovery fetch failed: %v %v", deps, err)
	}
	if inner.departmentCalls != 2 {
		t.Errorf("backing store hit %d times, want 2", inner.departmentCalls)
	}
}

func TestCachedDirectory_Invalidate(t *testing.T) {
	inner := &countingDirectory{}
	dir := Cached(inner, time.Minute)
	ctx := context.Background()

	dir.ListAgents(ctx)
	dir.Invalidate()
	dir.ListAgents(ctx)

	if inner.agentCalls != 2 {
		t.Errorf("backing store hit %d times after invalidate, want 2", inner.agentCalls)
	}
}
