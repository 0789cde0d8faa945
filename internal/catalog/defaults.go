package catalog

// DefaultServices is used when no catalog file overrides it. Endpoints point
// at placeholder hosts and are expected to be replaced in CATALOG_FILE.
func DefaultServices() []Service {
	return []Service{
		{
			Key:         "phone",
			Name:        "Phone Lookup",
			DisplayName: "📱 Phone Lookup",
			Cost:        0,
			APIURL:      "https://lookup.example.com/search/phone?value=",
			Method:      "GET",
			Alias:       "phone",
			InputPrompt: "📱 Enter a phone number",
			Enabled:     true,
		},
		{
			Key:         "email",
			Name:        "Email Lookup",
			DisplayName: "📧 Email Lookup",
			Cost:        0,
			APIURL:      "https://lookup.example.com/search/email?value=",
			Method:      "GET",
			Alias:       "email",
			InputPrompt: "📧 Enter an email address",
			Enabled:     true,
		},
		{
			Key:         "username_scan",
			Name:        "Username Scan",
			DisplayName: "👤 Username Scan",
			Cost:        1,
			APIURL:      "https://lookup.example.com/api/scan/username",
			Method:      "POST",
			InputField:  "username",
			Alias:       "username",
			InputPrompt: "👤 Enter a username to scan",
			Enabled:     true,
		},
		{
			Key:         "domain",
			Name:        "Domain Whois",
			DisplayName: "🌐 Domain Whois",
			Cost:        2,
			APIURL:      "https://lookup.example.com/whois?domain=",
			Method:      "GET",
			Alias:       "whois",
			InputPrompt: "🌐 Enter a domain name",
			Enabled:     true,
		},
	}
}

func DefaultShopItems() []ShopItem {
	return []ShopItem{
		{ID: 1, Type: ItemCreditPack, Name: "10 Credits", Description: "Adds 10 credits to your balance.", PriceINR: 1.99, GrantsZC: 10},
		{ID: 2, Type: ItemCreditPack, Name: "25 Credits", Description: "Adds 25 credits to your balance.", PriceINR: 4.49, GrantsZC: 25},
		{ID: 3, Type: ItemCreditPack, Name: "50 Credits", Description: "Adds 50 credits to your balance.", PriceINR: 7.99, GrantsZC: 50},
		{ID: 4, Type: ItemCreditPack, Name: "100 Credits", Description: "Adds 100 credits to your balance.", PriceINR: 14.99, GrantsZC: 100},
		{ID: 5, Type: ItemCreditPack, Name: "500 Credits (Demo)", Description: "Adds 500 credits to your balance (Demo).", GrantsZC: 500},
		{ID: 6, Type: ItemCreditPack, Name: "1000 Credits (Demo)", Description: "Adds 1000 credits to your balance (Demo).", GrantsZC: 1000},
		{ID: 7, Type: ItemMembership, Name: "Basic Role", Description: "Grants Basic role with 60s cooldown and 10 ZC/day.", GrantsRoleID: 2},
		{ID: 8, Type: ItemMembership, Name: "Pro Role", Description: "Grants Pro role with 15s cooldown and 25 ZC/day.", GrantsRoleID: 3},
		{ID: 9, Type: ItemMembership, Name: "Elite Role", Description: "Grants Elite role with 3s cooldown and 50 ZC/day.", GrantsRoleID: 4},
		{ID: 10, Type: ItemExclusionSlot, Name: "Exclusion Slot", Description: "Reserves one exclusion slot."},
	}
}
