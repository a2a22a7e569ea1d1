package models

type Stage struct {
	ID          int    `gorm:"primaryKey" json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	OrderNo     int    `gorm:"column:order_no" json:"orderNo"`
}

func (Stage) TableName() string {
	return "stages"
}

type Problem struct {
	ID            int    `gorm:"primaryKey" json:"id"`
	StageID       int    `gorm:"column:stage_id;index" json:"stageId"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	ExpectedQuery string `gorm:"column:expected_query" json:"expectedQuery,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
}

func (Problem) TableName() string {
	return "problems"
}

// Challenge is one step of a tutorial level.
type Challenge struct {
	ID                    int64  `gorm:"primaryKey" json:"id"`
	LevelID               int    `gorm:"column:level_id" json:"-"`
	StageNumber           int    `gorm:"column:stage_number" json:"stageNumber"`
	StageTitle            string `gorm:"column:stage_title" json:"stageTitle"`
	Difficulty            string `json:"difficulty"`
	Description           string `json:"description"`
	ExpectedQuery         string `gorm:"column:expected_query" json:"expectedQuery"`
	Hint                  string `json:"hint"`
	RelationalAlgebraHint string `gorm:"column:relational_algebra_hint" json:"relationalAlgebraHint"`
	SuccessMessage        string `gorm:"column:success_message" json:"successMessage"`
	ChallengeType         string `gorm:"column:challenge_type" json:"challengeType"`
}

func (Challenge) TableName() string {
	return "challenges"
}

type TutorialSchema struct {
	LevelID    int    `gorm:"column:level_id"`
	SchemaInfo string `gorm:"column:schema_info"`
}

func (TutorialSchema) TableName() string {
	return "tutorial_schema"
}
