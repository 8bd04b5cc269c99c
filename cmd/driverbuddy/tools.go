// README: Operator commands for schema setup, driver registration, trip simulation and test SMS.
package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"driverbuddy/internal/infra"
	"driverbuddy/internal/modules/driver"
	"driverbuddy/internal/simulate"
	"driverbuddy/internal/sms"
	"driverbuddy/internal/types"
)

func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if dir == "" {
				d, err := infra.MigrationsDir()
				if err != nil {
					return err
				}
				dir = d
			}
			dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
			if err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer dbPool.Close()

			applied, err := infra.ApplyMigrations(ctx, dbPool, dir)
			if err != nil {
				return err
			}
			for _, f := range applied {
				fmt.Printf("applied %s\n", f)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory of .sql migrations (default: repo migrations/)")
	return cmd
}

func driverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "driver",
		Short: "Manage drivers",
	}

	var name, phone string
	register := &cobra.Command{
		Use:   "register [driver-id]",
		Short: "Set a driver's name and phone number so stop alerts can be texted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
			if err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer dbPool.Close()

			d, err := driver.NewService(driver.NewStore(dbPool)).Register(ctx, driver.RegisterCommand{
				ID:    types.ID(args[0]),
				Name:  name,
				Phone: phone,
			})
			if err != nil {
				return err
			}
			fmt.Printf("driver %s: %s %s\n", d.ID, d.Name, d.Phone)
			return nil
		},
	}
	register.Flags().StringVar(&name, "name", "", "Driver display name")
	register.Flags().StringVar(&phone, "phone", "", "Phone number in E.164 format, e.g. +15551234567")
	_ = register.MarkFlagRequired("phone")

	cmd.AddCommand(register)
	return cmd
}

func simulateCmd() *cobra.Command {
	var (
		apiURL    string
		vehicleID string
		driverID  string
		delay     time.Duration
		seed      int64
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Post a fake trip (moving, stopped, moving) to the telemetry webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := simulate.Trip(simulate.TripConfig{
				VehicleID: vehicleID,
				DriverID:  driverID,
				Lat:       40.7128,
				Lng:       -74.0060,
				Start:     time.Now(),
			}, rand.New(rand.NewSource(seed)))

			fmt.Printf("Simulating trip for %s -> %s\n", vehicleID, apiURL)
			results, err := simulate.NewRunner(apiURL, delay, os.Stdout).Run(cmd.Context(), steps)
			if err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if r.Status != http.StatusOK {
					failed++
				}
			}
			fmt.Printf("\nposted=%d failed=%d\n", len(results), failed)
			if failed > 0 {
				return fmt.Errorf("%d samples were not accepted", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "url", "http://localhost:8000/webhook/samsara", "Telemetry webhook URL")
	cmd.Flags().StringVar(&vehicleID, "vehicle", "truck-1001", "Vehicle id")
	cmd.Flags().StringVar(&driverID, "driver", "1", "Driver id")
	cmd.Flags().DurationVar(&delay, "delay", time.Second, "Pause between samples")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "Random seed")
	return cmd
}

func sendSMSCmd() *cobra.Command {
	var body string
	cmd := &cobra.Command{
		Use:   "send-sms [phone]",
		Short: "Send a test SMS directly through the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to := strings.TrimSpace(args[0])
			if !strings.HasPrefix(to, "+") {
				return fmt.Errorf("phone must be in E.164 format, e.g. +15551234567")
			}
			if !cfg.TwilioEnabled() {
				return fmt.Errorf("%w: set TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_NUMBER", sms.ErrNotConfigured)
			}
			sid, err := sms.NewTwilio(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber).
				Send(cmd.Context(), sms.SendRequest{To: to, Body: body})
			if err != nil {
				return fmt.Errorf("send failed: %w", err)
			}
			fmt.Printf("SMS sent, provider message id %s\n", sid)
			return nil
		},
	}
	cmd.Flags().StringVar(&body, "body", "Test message from DriverBuddy - SMS is working!", "Message text")
	return cmd
}
