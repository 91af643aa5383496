package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/marvellous-media/marvellous-manager/internal/auth"
	leaveDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/leave"
	notificationDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/notification"
	shiftDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/shift"
	swapDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/swap"
	taskDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/task"
	userDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/user"
	"github.com/marvellous-media/marvellous-manager/internal/shift"
)

const seedPassword = "password"

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with the built-in shift templates and sample accounts for development.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		if clearData {
			if err := clearTables(db.Gorm); err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			fmt.Println("Cleared existing data")
		}

		cost := cfg.Security.BCryptCost
		if cost == 0 {
			cost = bcrypt.DefaultCost
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), cost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}

		rules := balanceRules(cfg.Schedule)
		balance := rules.HoursFromDays(float64(rules.DefaultDays))

		accounts := []userDatamodel.User{
			{Username: "admin", Role: auth.RoleAdmin, IsAdmin: true, Title: "Administrator"},
			{Username: "senior", Role: auth.RoleSenior, Title: "Senior Editor"},
			{Username: "operator", Role: auth.RoleOperator, Title: "Camera Operator"},
		}

		for _, account := range accounts {
			var count int64
			if err := db.Gorm.Model(&userDatamodel.User{}).Where("username = ?", account.Username).Count(&count).Error; err != nil {
				log.Fatalf("failed to look up user %s: %v", account.Username, err)
			}
			if count > 0 {
				fmt.Println("user already exists:", account.Username)
				continue
			}

			account.PasswordHash = string(hash)
			account.Balance = &balance
			if err := db.Gorm.Create(&account).Error; err != nil {
				log.Fatalf("failed to insert user %s: %v", account.Username, err)
			}
			fmt.Println("Seeded user:", account.Username)
		}

		for _, tmpl := range shift.BuiltinTemplates() {
			var count int64
			if err := db.Gorm.Model(&shiftDatamodel.ShiftTemplate{}).Where("shift_type = ?", tmpl.ShiftType).Count(&count).Error; err != nil {
				log.Fatalf("failed to look up template %s: %v", tmpl.ShiftType, err)
			}
			if count > 0 {
				continue
			}

			if err := db.Gorm.Create(shift.TemplateToDataModel(tmpl)).Error; err != nil {
				log.Fatalf("failed to insert template %s: %v", tmpl.ShiftType, err)
			}
			fmt.Printf("Seeded shift template: %s\n", tmpl.Name)
		}

		fmt.Println("Seeding complete")
	},
}

// clearTables deletes children before parents so foreign keys hold.
func clearTables(db *gorm.DB) error {
	models := []interface{}{
		&notificationDatamodel.NotificationFailure{},
		&notificationDatamodel.PushSubscription{},
		&taskDatamodel.Subtask{},
		&taskDatamodel.TaskAssignment{},
		&taskDatamodel.Task{},
		&taskDatamodel.Board{},
		&swapDatamodel.SwapRequest{},
		&leaveDatamodel.LeaveRequest{},
		&shiftDatamodel.Shift{},
		&shiftDatamodel.ShiftTemplate{},
		&userDatamodel.User{},
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, m := range models {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
