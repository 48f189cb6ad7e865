package models

// FieldKind is the input type of a details field
type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldNumber FieldKind = "number"
	FieldDate   FieldKind = "date"
	FieldBool   FieldKind = "bool"
)

// CategoryField describes one key of a project's details payload
type CategoryField struct {
	Key      string
	Label    string
	Kind     FieldKind
	Required bool
}

// Category describes a project category and its details fields
type Category struct {
	Code   string
	Label  string
	Prefix string
	Fields []CategoryField
}

// Categories lists every project category in display order
var Categories = []Category{
	{
		Code: CategorySurvey, Label: "測量", Prefix: "SV",
		Fields: []CategoryField{
			{Key: "parcel_number", Label: "地番", Kind: FieldText, Required: true},
			{Key: "survey_type", Label: "測量種別", Kind: FieldText},
			{Key: "land_area", Label: "面積(㎡)", Kind: FieldNumber},
			{Key: "boundary_confirmed", Label: "境界確定済", Kind: FieldBool},
			{Key: "site_visit_date", Label: "現地調査日", Kind: FieldDate},
		},
	},
	{
		Code: CategoryRegistration, Label: "登記", Prefix: "RG",
		Fields: []CategoryField{
			{Key: "registration_type", Label: "登記種別", Kind: FieldText, Required: true},
			{Key: "property_number", Label: "不動産番号", Kind: FieldText},
			{Key: "legal_office", Label: "管轄法務局", Kind: FieldText},
			{Key: "filed_on", Label: "申請日", Kind: FieldDate},
			{Key: "completed_on", Label: "完了日", Kind: FieldDate},
		},
	},
	{
		Code: CategoryDrone, Label: "ドローン", Prefix: "DR",
		Fields: []CategoryField{
			{Key: "flight_site", Label: "飛行場所", Kind: FieldText, Required: true},
			{Key: "aircraft", Label: "機体", Kind: FieldText},
			{Key: "permit_number", Label: "飛行許可番号", Kind: FieldText},
			{Key: "flight_date", Label: "飛行日", Kind: FieldDate},
			{Key: "flight_area", Label: "撮影面積(ha)", Kind: FieldNumber},
		},
	},
	{
		Code: CategoryFarmland, Label: "農地転用", Prefix: "FL",
		Fields: []CategoryField{
			{Key: "parcel_number", Label: "地番", Kind: FieldText, Required: true},
			{Key: "application_type", Label: "申請区分(3条/4条/5条)", Kind: FieldText},
			{Key: "land_area", Label: "面積(㎡)", Kind: FieldNumber},
			{Key: "committee_date", Label: "農業委員会日", Kind: FieldDate},
			{Key: "permitted", Label: "許可済", Kind: FieldBool},
		},
	},
}

// CategoryByCode returns the category with code
func CategoryByCode(code string) (Category, bool) {
	for _, c := range Categories {
		if c.Code == code {
			return c, true
		}
	}
	return Category{}, false
}

// CategoryLabel returns the display label for a category code
func CategoryLabel(code string) string {
	if c, ok := CategoryByCode(code); ok {
		return c.Label
	}
	return code
}

// ProjectStatuses lists the project statuses in workflow order
var ProjectStatuses = []string{ProjectInquiry, ProjectInProgress, ProjectCompleted, ProjectCancelled}

// StatusLabel returns the display label for any project, task or invoice status
func StatusLabel(status string) string {
	switch status {
	case ProjectInquiry:
		return "引合"
	case ProjectInProgress:
		return "進行中"
	case ProjectCompleted:
		return "完了"
	case ProjectCancelled:
		return "取消"
	case TaskTodo:
		return "未着手"
	case TaskDoing:
		return "対応中"
	case TaskDone:
		return "完了"
	case InvoiceDraft:
		return "下書き"
	case InvoiceIssued:
		return "発行済"
	case InvoicePaid:
		return "入金済"
	case InvoiceVoid:
		return "無効"
	}
	return status
}
