package mock

//go:generate go install github.com/golang/mock/mockgen@v1.6.0
//go:generate mockgen -package mock -destination ./keystore.mock.go github.com/authgear/authgear-sdk-ios-sub000/pkg/keystore KeyStore
