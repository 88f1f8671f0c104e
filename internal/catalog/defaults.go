package catalog

import "github.com/Veraticus/notiledger/internal/model"

const wonAmountRegex = `([0-9][0-9,]*)\s?원`

var (
	bankExpenseKeywords = []string{"출금", "이체", "자동이체", "결제", "승인"}
	bankIncomeKeywords  = []string{"입금", "급여", "이자", "환급"}
	cardExpenseKeywords = []string{"승인", "사용", "결제", "일시불", "할부"}
	cardIncomeKeywords  = []string{"환불", "캐시백"}
)

// DefaultBanks returns the built-in bank and card issuer configurations.
func DefaultBanks() []model.BankConfig {
	return []model.BankConfig{
		{
			BankID:          "kb_kookmin",
			DisplayName:     "KB국민은행",
			PackageNames:    []string{"com.kbstar.kbbank", "com.kbstar.liivbank", "com.kbstar.starbanking"},
			IncomeKeywords:  bankIncomeKeywords,
			ExpenseKeywords: bankExpenseKeywords,
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "kb_card",
			DisplayName:     "KB국민카드",
			PackageNames:    []string{"com.kbcard.cxh.appcard", "com.kbcard.kbkookmincard"},
			IncomeKeywords:  cardIncomeKeywords,
			ExpenseKeywords: cardExpenseKeywords,
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "shinhan_bank",
			DisplayName:     "신한은행",
			PackageNames:    []string{"com.shinhan.sbanking", "com.shinhan.smartcaremgr"},
			IncomeKeywords:  bankIncomeKeywords,
			ExpenseKeywords: bankExpenseKeywords,
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "shinhan_card",
			DisplayName:     "신한카드",
			PackageNames:    []string{"com.shcard.smartpay", "com.shinhancard.smartshinhan"},
			IncomeKeywords:  cardIncomeKeywords,
			ExpenseKeywords: cardExpenseKeywords,
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "woori_bank",
			DisplayName:     "우리은행",
			PackageNames:    []string{"com.wooribank.smart.npib", "com.wooribank.pib.smart"},
			IncomeKeywords:  bankIncomeKeywords,
			ExpenseKeywords: bankExpenseKeywords,
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "woori_card",
			DisplayName:     "우리카드",
			PackageNames:    []string{"com.wooricard.smartapp"},
			IncomeKeywords:  cardIncomeKeywords,
			ExpenseKeywords: cardExpenseKeywords,
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "hana_bank",
			DisplayName:     "하나은행",
			PackageNames:    []string{"com.kebhana.hanapush", "com.hanabank.ebk.channel.android.hananbank"},
			IncomeKeywords:  bankIncomeKeywords,
			ExpenseKeywords: bankExpenseKeywords,
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "hana_card",
			DisplayName:     "하나카드",
			PackageNames:    []string{"com.hanaskcard.paycla", "com.hanacard.app"},
			IncomeKeywords:  cardIncomeKeywords,
			ExpenseKeywords: cardExpenseKeywords,
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "nh_bank",
			DisplayName:     "NH농협은행",
			PackageNames:    []string{"nh.smart.banking", "com.nonghyup.nhallonebank"},
			IncomeKeywords:  bankIncomeKeywords,
			ExpenseKeywords: bankExpenseKeywords,
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "nh_card",
			DisplayName:     "NH농협카드",
			PackageNames:    []string{"nh.smart.nhallonepay", "nh.smart.card"},
			IncomeKeywords:  cardIncomeKeywords,
			ExpenseKeywords: cardExpenseKeywords,
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "ibk_bank",
			DisplayName:     "IBK기업은행",
			PackageNames:    []string{"com.ibk.android.ionebank", "com.ibk.neobanking"},
			IncomeKeywords:  bankIncomeKeywords,
			ExpenseKeywords: bankExpenseKeywords,
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "kakaobank",
			DisplayName:     "카카오뱅크",
			PackageNames:    []string{"com.kakaobank.channel"},
			IncomeKeywords:  bankIncomeKeywords,
			ExpenseKeywords: append([]string{"체크카드"}, bankExpenseKeywords...),
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "toss",
			DisplayName:     "토스뱅크",
			PackageNames:    []string{"viva.republica.toss"},
			IncomeKeywords:  []string{"입금", "받았어요", "이자"},
			ExpenseKeywords: []string{"출금", "보냈어요", "결제", "승인"},
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "samsung_card",
			DisplayName:     "삼성카드",
			PackageNames:    []string{"kr.co.samsungcard.mpocket"},
			IncomeKeywords:  cardIncomeKeywords,
			ExpenseKeywords: cardExpenseKeywords,
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "hyundai_card",
			DisplayName:     "현대카드",
			PackageNames:    []string{"com.hyundaicard.appcard"},
			IncomeKeywords:  cardIncomeKeywords,
			ExpenseKeywords: cardExpenseKeywords,
			AmountRegex:     wonAmountRegex,
		},
		{
			BankID:          "lotte_card",
			DisplayName:     "롯데카드",
			PackageNames:    []string{"com.lcacApp"},
			IncomeKeywords:  cardIncomeKeywords,
			ExpenseKeywords: cardExpenseKeywords,
			AmountRegex:     wonAmountRegex,
		},
	}
}

// DefaultMerchants returns the built-in merchant table in match order.
// More specific keywords precede the broader ones they contain.
func DefaultMerchants() []model.Merchant {
	return []model.Merchant{
		{ID: "starbucks", DisplayName: "스타벅스", DefaultCategory: model.CategoryCafe, Icon: "coffee", Keywords: []string{"스타벅스", "starbucks"}},
		{ID: "ediya", DisplayName: "이디야커피", DefaultCategory: model.CategoryCafe, Icon: "coffee", Keywords: []string{"이디야", "ediya"}},
		{ID: "mega_coffee", DisplayName: "메가커피", DefaultCategory: model.CategoryCafe, Icon: "coffee", Keywords: []string{"메가커피", "메가mgc", "megacoffee"}},
		{ID: "twosome", DisplayName: "투썸플레이스", DefaultCategory: model.CategoryCafe, Icon: "coffee", Keywords: []string{"투썸", "twosome"}},
		{ID: "coupang_eats", DisplayName: "쿠팡이츠", DefaultCategory: model.CategoryDelivery, Icon: "delivery", Keywords: []string{"쿠팡이츠", "coupang eats"}},
		{ID: "baemin", DisplayName: "배달의민족", DefaultCategory: model.CategoryDelivery, Icon: "delivery", Keywords: []string{"배달의민족", "배민", "우아한형제들"}},
		{ID: "yogiyo", DisplayName: "요기요", DefaultCategory: model.CategoryDelivery, Icon: "delivery", Keywords: []string{"요기요", "yogiyo"}},
		{ID: "coupang", DisplayName: "쿠팡", DefaultCategory: model.CategoryShopping, Icon: "cart", Keywords: []string{"쿠팡", "coupang"}},
		{ID: "naver_pay", DisplayName: "네이버페이", DefaultCategory: model.CategoryShopping, Icon: "cart", Keywords: []string{"네이버페이", "naverpay"}},
		{ID: "olive_young", DisplayName: "올리브영", DefaultCategory: model.CategoryShopping, Icon: "bag", Keywords: []string{"올리브영", "oliveyoung"}},
		{ID: "daiso", DisplayName: "다이소", DefaultCategory: model.CategoryShopping, Icon: "bag", Keywords: []string{"다이소", "daiso"}},
		{ID: "emart24", DisplayName: "이마트24", DefaultCategory: model.CategoryConvenience, Icon: "store", Keywords: []string{"이마트24", "emart24"}},
		{ID: "emart", DisplayName: "이마트", DefaultCategory: model.CategoryGrocery, Icon: "cart", Keywords: []string{"이마트", "emart"}},
		{ID: "homeplus", DisplayName: "홈플러스", DefaultCategory: model.CategoryGrocery, Icon: "cart", Keywords: []string{"홈플러스", "homeplus"}},
		{ID: "lotte_mart", DisplayName: "롯데마트", DefaultCategory: model.CategoryGrocery, Icon: "cart", Keywords: []string{"롯데마트", "lottemart"}},
		{ID: "gs25", DisplayName: "GS25", DefaultCategory: model.CategoryConvenience, Icon: "store", Keywords: []string{"gs25", "지에스25"}},
		{ID: "cu", DisplayName: "CU", DefaultCategory: model.CategoryConvenience, Icon: "store", Keywords: []string{"씨유", "cu편의점", "bgf리테일"}},
		{ID: "seven_eleven", DisplayName: "세븐일레븐", DefaultCategory: model.CategoryConvenience, Icon: "store", Keywords: []string{"세븐일레븐", "7-eleven"}},
		{ID: "mcdonalds", DisplayName: "맥도날드", DefaultCategory: model.CategoryFood, Icon: "food", Keywords: []string{"맥도날드", "mcdonald"}},
		{ID: "kakao_t", DisplayName: "카카오T", DefaultCategory: model.CategoryTransport, Icon: "taxi", Keywords: []string{"카카오t", "카카오택시", "kakaot"}},
		{ID: "tmoney", DisplayName: "티머니", DefaultCategory: model.CategoryTransport, Icon: "bus", Keywords: []string{"티머니", "tmoney", "지하철", "버스"}},
		{ID: "korail", DisplayName: "코레일", DefaultCategory: model.CategoryTransport, Icon: "train", Keywords: []string{"코레일", "korail", "srt"}},
		{ID: "netflix", DisplayName: "넷플릭스", DefaultCategory: model.CategorySubscription, Icon: "tv", Keywords: []string{"넷플릭스", "netflix"}},
		{ID: "youtube", DisplayName: "유튜브 프리미엄", DefaultCategory: model.CategorySubscription, Icon: "tv", Keywords: []string{"유튜브", "youtube", "google*youtube"}},
		{ID: "skt", DisplayName: "SK텔레콤", DefaultCategory: model.CategoryTelecom, Icon: "phone", Keywords: []string{"sk텔레콤", "skt통신"}},
		{ID: "kt", DisplayName: "KT", DefaultCategory: model.CategoryTelecom, Icon: "phone", Keywords: []string{"kt통신", "케이티"}},
		{ID: "pharmacy", DisplayName: "약국", DefaultCategory: model.CategoryHealth, Icon: "health", Keywords: []string{"약국"}},
		{ID: "clinic", DisplayName: "병원", DefaultCategory: model.CategoryHealth, Icon: "health", Keywords: []string{"병원", "의원", "치과"}},
		{ID: "academy", DisplayName: "학원", DefaultCategory: model.CategoryEducation, Icon: "book", Keywords: []string{"학원"}},
		{ID: "utilities", DisplayName: "공과금", DefaultCategory: model.CategoryUtilities, Icon: "bill", Keywords: []string{"한국전력", "도시가스", "수도요금", "관리비"}},
		{ID: model.MerchantOtherID, DisplayName: "기타", DefaultCategory: model.CategoryOther, Icon: "etc"},
	}
}
