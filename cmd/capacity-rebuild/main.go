package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/projects_backend/config"
	"github.com/mmdatafocus/projects_backend/utils"
	"github.com/mmdatafocus/projects_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	staffID := flag.Int("staff-id", 0, "Optional: staff id (default: all active staff)")
	fromDateStr := flag.String("from", "", "Optional: rebuild from date (YYYY-MM-DD). Defaults to earliest allocation start for the scope.")
	toDateStr := flag.String("to", "", "Optional: rebuild to date (YYYY-MM-DD). Defaults to one year ahead.")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing staff and continue rebuilding others")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()
	ctx := utils.SetBusinessIdInContext(context.Background(), *businessID)

	to := time.Now().UTC().AddDate(1, 0, 0)
	if strings.TrimSpace(*toDateStr) != "" {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(*toDateStr))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid to date: %v\n", err)
			os.Exit(1)
		}
		to = d
	}

	type scope struct {
		StaffId   int
		StartDate time.Time
	}
	var scopes []scope

	if *staffID > 0 {
		start := time.Now().UTC()
		if strings.TrimSpace(*fromDateStr) != "" {
			d, err := time.Parse("2006-01-02", strings.TrimSpace(*fromDateStr))
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid from date: %v\n", err)
				os.Exit(1)
			}
			start = d
		} else {
			// Earliest allocation start for the staff member
			db.Raw(`
				SELECT COALESCE(MIN(start_date), NOW()) AS start_date
				FROM resource_allocations
				WHERE business_id = ? AND staff_id = ? AND deleted_at IS NULL
			`, *businessID, *staffID).Scan(&start)
		}
		scopes = append(scopes, scope{*staffID, start})
	} else {
		// Discover all staff with allocations for the business.
		var rows []scope
		if err := db.Raw(`
			SELECT staff_id, MIN(start_date) AS start_date
			FROM resource_allocations
			WHERE business_id = ? AND deleted_at IS NULL
			GROUP BY staff_id
		`, *businessID).Scan(&rows).Error; err != nil {
			fmt.Fprintf(os.Stderr, "discover scopes: %v\n", err)
			os.Exit(1)
		}
		scopes = rows
	}

	for _, s := range scopes {
		fmt.Printf("Rebuilding business=%s staff=%d from=%s to=%s\n",
			*businessID, s.StaffId, s.StartDate.Format("2006-01-02"), to.Format("2006-01-02"))
		if err := db.Transaction(func(tx *gorm.DB) error {
			return workflow.RebuildCapacityForStaff(tx, logger, ctx, *businessID, s.StaffId, s.StartDate, to)
		}); err != nil {
			if *continueOnError {
				fmt.Fprintf(os.Stderr, "rebuild failed (skipping): %v\n", err)
				continue
			}
			fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("capacity rebuild complete")
}
