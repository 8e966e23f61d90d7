package constants

// PermissionRoles maps each permission to the roles allowed to perform it.
// Distribution authority is restricted to the designated operator/admin.
var PermissionRoles = map[string][]string{
	ViewData:          {Investor, Driver, Operator, Admin},
	RegisterAsset:     {Operator, Admin},
	MintTokens:        {Investor, Operator, Admin},
	TransferTokens:    {Operator, Admin},
	RevokeTokens:      {Admin},
	RecordRevenue:     {Operator, Admin},
	DistributePayouts: {Operator, Admin},
	CreditWallet:      {Operator, Admin},
	DebitWallet:       {Operator, Admin},
	TransferFunds:     {Operator, Admin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	roles, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
