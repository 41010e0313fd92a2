package gpu

// MockProvider provides fake GPU data for testing
type MockProvider struct {
	DeviceList []Device
	InitErr    error
	DevicesErr error
}

func NewMockProvider(devices []Device) *MockProvider {
	return &MockProvider{DeviceList: devices}
}

func (p *MockProvider) Init() error {
	return p.InitErr
}

func (p *MockProvider) Shutdown() error {
	return nil
}

func (p *MockProvider) Devices() ([]Device, error) {
	if p.DevicesErr != nil {
		return nil, p.DevicesErr
	}
	return p.DeviceList, nil
}

// Compile-time interface check
var _ Provider = (*MockProvider)(nil)
