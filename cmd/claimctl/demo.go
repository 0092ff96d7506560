package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/xelth-com/claimsync/internal/capture"
	"github.com/xelth-com/claimsync/internal/models"
	"github.com/xelth-com/claimsync/internal/remote/fakeapi"
	"gorm.io/datatypes"
)

var seedDemoCmd = &cobra.Command{
	Use:   "seed-demo",
	Short: "Capture a demo claim with zones, damage, photos and line items",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		claimID, err := seedDemo(cmd.Context(), e.capture)
		if err != nil {
			return err
		}
		pending, _ := e.capture.PendingCountForClaim(cmd.Context(), claimID)
		fmt.Fprintf(cmd.OutOrStdout(), "🌱 Seeded claim %s (%d queued mutations)\n", claimID, pending)
		return nil
	},
}

// seedDemo records a small water-loss inspection through the capture API
func seedDemo(ctx context.Context, c *capture.Service) (string, error) {
	loss := time.Now().UTC().AddDate(0, 0, -3)
	claim := &models.Claim{
		ClaimNumber:     fmt.Sprintf("DEMO-%d", time.Now().Unix()),
		InsuredName:     "Jordan Demo",
		PropertyAddress: "12 Harbor Lane",
		PerilType:       "water",
		Status:          "inspecting",
		DateOfLoss:      &loss,
	}
	if err := c.SaveClaim(ctx, claim); err != nil {
		return "", err
	}

	rooms := []struct {
		name string
		dims string
	}{
		{"Kitchen", `{"lengthFt": 14, "widthFt": 12, "heightFt": 8}`},
		{"Hallway", `{"lengthFt": 20, "widthFt": 4, "heightFt": 8}`},
	}
	for i, room := range rooms {
		zone := &models.Zone{
			ClaimID:              claim.ID,
			Name:                 room.name,
			ZoneType:             "room",
			CalculatedDimensions: datatypes.JSON(room.dims),
		}
		if err := c.SaveZone(ctx, zone); err != nil {
			return "", err
		}

		photo := &models.Photo{ClaimID: claim.ID, ZoneID: &zone.ID, Tag: "interior/" + room.name, ContentType: "image/jpeg"}
		if err := c.SavePhoto(ctx, photo, demoJPEG(i)); err != nil {
			return "", err
		}

		marker := &models.DamageMarker{
			ZoneID:     zone.ID,
			Severity:   "moderate",
			DamageType: "water",
			Position:   datatypes.JSON(`{"x": 0.4, "y": 0.1}`),
			PhotoIDs:   datatypes.JSONSlice[string]{photo.ID},
		}
		if err := c.SaveDamageMarker(ctx, marker); err != nil {
			return "", err
		}

		item := &models.ScopeLineItem{
			ClaimID:     claim.ID,
			ZoneID:      &zone.ID,
			Code:        "DRY-1",
			Description: "Remove and replace drywall",
			Quantity:    decimal.NewFromInt(32),
			Unit:        "SF",
			UnitPrice:   decimal.RequireFromString("3.10"),
		}
		if err := c.SaveLineItem(ctx, item); err != nil {
			return "", err
		}
	}

	pct := 40
	if _, err := c.UpdateFlowProgress(ctx, claim.ID, models.FlowUpdate{
		MovementID:      "exterior-walkaround",
		ProgressPercent: &pct,
		Completed:       true,
		Notes:           "No exterior damage",
	}); err != nil {
		return "", err
	}
	return claim.ID, nil
}

// demoJPEG returns a tiny placeholder image that sniffs as JPEG
func demoJPEG(seed int) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	buf.Write(bytes.Repeat([]byte{byte(seed)}, 1024))
	buf.Write([]byte{0xFF, 0xD9})
	return buf.Bytes()
}

var fakeRemoteCmd = &cobra.Command{
	Use:   "fake-remote",
	Short: "Serve an in-memory system-of-record API for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		secret, _ := cmd.Flags().GetString("secret")

		server := &http.Server{Addr: addr, Handler: fakeapi.New(secret, nil), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-cmd.Context().Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		}()

		fmt.Fprintf(cmd.OutOrStdout(), "🧪 Fake remote API listening on %s\n", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

func init() {
	fakeRemoteCmd.Flags().String("addr", ":8080", "listen address")
	fakeRemoteCmd.Flags().String("secret", "", "JWT secret for device tokens; empty accepts any request")
}
