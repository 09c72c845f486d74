package repository

import (
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
)

type CampaignEntity struct {
	ID            int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	UserID        int64     `db:"user_id"        gorm:"column:user_id;not null;index"`
	Subject       string    `db:"subject"        gorm:"column:subject;not null"`
	Content       string    `db:"content"        gorm:"column:content"`
	TemplateHTML  string    `db:"template_html"  gorm:"column:template_html"`
	SenderName    string    `db:"sender_name"    gorm:"column:sender_name"`
	SenderEmail   string    `db:"sender_email"   gorm:"column:sender_email;not null"`
	Status        string    `db:"status"         gorm:"column:status;not null;default:draft;index"`
	TaskID        string    `db:"task_id"        gorm:"column:task_id"`
	FailureReason string    `db:"failure_reason" gorm:"column:failure_reason"`
	CreatedAt     time.Time `db:"created_at"     gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `db:"updated_at"     gorm:"column:updated_at;autoUpdateTime"`
}

func (CampaignEntity) TableName() string {
	return "campaigns"
}

type CampaignListEntity struct {
	CampaignID int64 `db:"campaign_id" gorm:"column:campaign_id;primaryKey"`
	ListID     int64 `db:"list_id"     gorm:"column:list_id;primaryKey"`
}

func (CampaignListEntity) TableName() string {
	return "campaign_lists"
}

func toCampaignEntity(c *model.Campaign) *CampaignEntity {
	if c == nil {
		return nil
	}
	return &CampaignEntity{
		ID:            c.ID,
		UserID:        c.UserID,
		Subject:       c.Subject,
		Content:       c.Content,
		TemplateHTML:  c.TemplateHTML,
		SenderName:    c.SenderName,
		SenderEmail:   c.SenderEmail,
		Status:        string(c.Status),
		TaskID:        c.TaskID,
		FailureReason: c.FailureReason,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func toCampaignModel(e *CampaignEntity) *model.Campaign {
	if e == nil {
		return nil
	}
	return &model.Campaign{
		ID:            e.ID,
		UserID:        e.UserID,
		Subject:       e.Subject,
		Content:       e.Content,
		TemplateHTML:  e.TemplateHTML,
		SenderName:    e.SenderName,
		SenderEmail:   e.SenderEmail,
		Status:        model.CampaignStatus(e.Status),
		TaskID:        e.TaskID,
		FailureReason: e.FailureReason,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func toCampaignModels(entities []*CampaignEntity) []*model.Campaign {
	if entities == nil {
		return nil
	}
	models := make([]*model.Campaign, len(entities))
	for i, e := range entities {
		models[i] = toCampaignModel(e)
	}
	return models
}
