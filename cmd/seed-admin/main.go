package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/projects_backend/config"
	"github.com/mmdatafocus/projects_backend/models"
	"github.com/mmdatafocus/projects_backend/utils"
)

// Seeds a business with an admin staff account so the REST API has a first
// login. Idempotent per email: re-running with an existing email fails
// validation instead of duplicating the account.
func main() {
	businessName := flag.String("business", "", "Required: business name (created if --business-id is empty)")
	businessID := flag.String("business-id", "", "Optional: existing business id (uuid)")
	email := flag.String("email", "", "Required: admin email")
	password := flag.String("password", "", "Required: admin password")
	name := flag.String("name", "Admin", "Admin display name")
	timezone := flag.String("timezone", "", "Business timezone (default Asia/Yangon)")
	flag.Parse()

	if strings.TrimSpace(*email) == "" || strings.TrimSpace(*password) == "" {
		fmt.Fprintln(os.Stderr, "--email and --password are required")
		os.Exit(1)
	}
	if strings.TrimSpace(*businessID) == "" && strings.TrimSpace(*businessName) == "" {
		fmt.Fprintln(os.Stderr, "--business or --business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := context.Background()

	bid := strings.TrimSpace(*businessID)
	if bid == "" {
		business, err := models.CreateBusiness(ctx, &models.NewBusiness{
			Name:     strings.TrimSpace(*businessName),
			Email:    strings.TrimSpace(*email),
			Timezone: strings.TrimSpace(*timezone),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create business: %v\n", err)
			os.Exit(1)
		}
		bid = business.ID.String()
		fmt.Printf("created business %s (%s)\n", business.Name, bid)
	}

	ctx = utils.SetBusinessIdInContext(ctx, bid)
	staff, err := models.CreateStaff(ctx, &models.NewStaff{
		Name:                 strings.TrimSpace(*name),
		Email:                strings.TrimSpace(*email),
		CanApproveTimesheets: utils.NewTrue(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create staff: %v\n", err)
		os.Exit(1)
	}

	hashed, err := utils.HashPassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash password: %v\n", err)
		os.Exit(1)
	}
	db := config.GetDB()
	err = db.Model(staff).Updates(map[string]interface{}{
		"Password": string(hashed),
		"IsAdmin":  true,
	}).Error
	if err != nil {
		fmt.Fprintf(os.Stderr, "set admin credentials: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("seeded admin staff_id=%d email=%s business_id=%s\n", staff.ID, staff.Email, bid)
}
