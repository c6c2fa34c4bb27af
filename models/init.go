package models

import (
	"gorm.io/gorm"
)

// CreateUserWithProfile inserts the user and its empty profile in one
// transaction, so a user never exists without a profile.
func CreateUserWithProfile(db *gorm.DB, user *User) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Profile", "EmailAccounts").Create(user).Error; err != nil {
			return err
		}
		profile := UserProfile{UserID: user.ID}
		if err := tx.Create(&profile).Error; err != nil {
			return err
		}
		user.Profile = &profile
		return nil
	})
}

// DeleteUser removes the user together with its profile and email accounts.
func DeleteUser(db *gorm.DB, user *User) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&EmailAccount{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&UserProfile{}).Error; err != nil {
			return err
		}
		return tx.Delete(user).Error
	})
}

// EnsureProfiles creates the profile of every user that lacks one, e.g.
// users inserted by hand or before profiles existed. It returns how many
// profiles were created.
func EnsureProfiles(db *gorm.DB) (int, error) {
	var userIDs []uint
	if err := db.Model(&User{}).
		Where("NOT EXISTS (SELECT 1 FROM user_profiles WHERE user_profiles.user_id = users.id)").
		Pluck("id", &userIDs).Error; err != nil {
		return 0, err
	}

	created := 0
	for _, id := range userIDs {
		profile := UserProfile{UserID: id}
		result := db.Where(UserProfile{UserID: id}).FirstOrCreate(&profile)
		if result.Error != nil {
			return created, result.Error
		}
		created += int(result.RowsAffected)
	}
	return created, nil
}
