package domain

const (
	DefaultPercentageFee  = 6
	DefaultTransactionFee = 30
)

// Weekdays 是 hours 模板的固定顺序。
var Weekdays = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// TruckRecord 是落盘到 <state>/<city>/<slug>.json 的固定结构。
//
// 字段按 JSON key 字典序声明；编码层还会再做一次 key 排序，两者一致时 diff 更友好。
type TruckRecord struct {
	Address        string   `json:"address" bson:"address"`
	Description    string   `json:"description" bson:"description"`
	ExampleOrder   string   `json:"exampleOrder" bson:"exampleOrder"`
	Hours          []Hours  `json:"hours" bson:"hours"`
	Name           string   `json:"name" bson:"name"`
	Optional       Optional `json:"optional" bson:"optional"`
	Password       string   `json:"password" bson:"password"`
	PercentageFee  int      `json:"percentageFee" bson:"percentageFee"`
	ProfileImage   string   `json:"profileImage" bson:"profileImage"`
	TransactionFee int      `json:"transactionFee" bson:"transactionFee"`
	Username       string   `json:"username" bson:"username"`
}

type Hours struct {
	CloseTime string `json:"closeTime" bson:"closeTime"`
	Day       string `json:"day" bson:"day"`
	OpenTime  string `json:"openTime" bson:"openTime"`
}

type Optional struct {
	Producer Producer `json:"producer" bson:"producer"`
}

type Producer struct {
	Enabled     bool   `json:"enabled" bson:"enabled"`
	MenuLink    string `json:"menuLink" bson:"menuLink"`
	PhoneNumber string `json:"phoneNumber" bson:"phoneNumber"`
}

// NewTruckRecord 用页面抽取到的三个字段填充模板；其余字段是常量或留给运营补全的空串。
func NewTruckRecord(name, description, profileImage string) TruckRecord {
	hours := make([]Hours, 0, len(Weekdays))
	for _, d := range Weekdays {
		hours = append(hours, Hours{Day: d})
	}
	return TruckRecord{
		Description:    description,
		Hours:          hours,
		Name:           name,
		Optional:       Optional{Producer: Producer{Enabled: true}},
		PercentageFee:  DefaultPercentageFee,
		ProfileImage:   profileImage,
		TransactionFee: DefaultTransactionFee,
	}
}

// TruckKey 唯一定位一条记录（也是 Mongo upsert 的 filter）。
type TruckKey struct {
	State string
	City  string
	Slug  string
}
