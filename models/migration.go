package models

import (
	"log"

	"github.com/mmdatafocus/projects_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &Module{},
		&Staff{}, &Project{}, &Task{},
		&ResourceAllocation{}, &ResourceCapacity{},
		&Timesheet{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
