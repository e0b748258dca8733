package taskcache

type TaskSnapshot struct {
	TaskID       string `gorm:"column:task_id;primaryKey"`
	UserID       string `gorm:"column:user_id;not null;default:'';index"`
	Action       string `gorm:"column:action;not null;default:''"`
	Status       string `gorm:"column:status;not null;default:''"`
	ResultURL    string `gorm:"column:result_url;not null;default:''"`
	ThumbnailURL string `gorm:"column:thumbnail_url;not null;default:''"`
	Progress     int    `gorm:"column:progress;not null;default:0"`
	ErrorMessage string `gorm:"column:error_message;not null;default:''"`
	CreatedAt    int64  `gorm:"column:created_at;not null;default:0"`
	UpdatedAt    int64  `gorm:"column:updated_at;not null;default:0"`
	ObservedAt   int64  `gorm:"column:observed_at;not null;default:0"`
}

func (TaskSnapshot) TableName() string { return "task_snapshots" }

type WalletSnapshot struct {
	UserID     string `gorm:"column:user_id;primaryKey"`
	Balance    int64  `gorm:"column:balance;not null;default:0"`
	ObservedAt int64  `gorm:"column:observed_at;not null;default:0"`
}

func (WalletSnapshot) TableName() string { return "wallet_snapshots" }
