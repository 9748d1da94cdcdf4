package main

import (
	"context"
	"fmt"

	"github.com/loadops/k6ctl/pkg/client"
)

func apiClient(flags *APIFlags) *client.Client {
	cc := client.DefaultConfig()
	if flags.APIUrl != "" {
		cc.BaseURL = flags.APIUrl
	}
	if flags.APITimeout > 0 {
		cc.Timeout = flags.APITimeout
	}
	return client.New(cc)
}

func runAction(ctx context.Context, name string, flags *APIFlags) error {
	c := apiClient(flags)
	res, err := c.Action(ctx, name, nil)
	if err != nil {
		return err
	}
	if res.Status == "error" {
		return fmt.Errorf("%s failed: %s", name, res.Message)
	}
	fmt.Println(res.Message)
	return nil
}

func runStatus(ctx context.Context, flags *APIFlags) error {
	c := apiClient(flags)
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	if st.Unit.Reason != "" {
		fmt.Printf("unit: %s: %s\n", st.Unit.Kind, st.Unit.Reason)
	} else {
		fmt.Printf("unit: %s\n", st.Unit.Kind)
	}
	fmt.Printf("workload: %s", st.Workload.State)
	if st.Workload.PID != 0 {
		fmt.Printf(" (pid %d)", st.Workload.PID)
	}
	if st.Workload.State == "failed" {
		fmt.Printf(" exit=%d", st.Workload.ExitCode)
	}
	fmt.Println()
	return nil
}

func runSetLeader(ctx context.Context, flags *APIFlags, leader bool) error {
	c := apiClient(flags)
	if err := c.SetLeader(ctx, leader); err != nil {
		return err
	}
	fmt.Printf("leader set to %v\n", leader)
	return nil
}
