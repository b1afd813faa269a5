package wsupgrade_test

import (
	"testing"

	"github.com/coder/wsupgrade"
	"github.com/coder/wsupgrade/internal/test/assert"
)

func TestCloseCode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		code wsupgrade.CloseCode
		val  uint16
		name string
	}{
		{wsupgrade.CloseNormal, 1000, "CloseNormal"},
		{wsupgrade.CloseAway, 1001, "CloseAway"},
		{wsupgrade.CloseProtocol, 1002, "CloseProtocol"},
		{wsupgrade.CloseUnsupported, 1003, "CloseUnsupported"},
		{wsupgrade.CloseStatus, 1005, "CloseStatus"},
		{wsupgrade.CloseAbnormal, 1006, "CloseAbnormal"},
		{wsupgrade.CloseInvalid, 1007, "CloseInvalid"},
		{wsupgrade.ClosePolicy, 1008, "ClosePolicy"},
		{wsupgrade.CloseSize, 1009, "CloseSize"},
		{wsupgrade.CloseExtension, 1010, "CloseExtension"},
		{wsupgrade.CloseError, 1011, "CloseError"},
		{wsupgrade.CloseRestart, 1012, "CloseRestart"},
		{wsupgrade.CloseAgain, 1013, "CloseAgain"},
		{wsupgrade.CloseCode(1004), 1004, "CloseCode(1004)"},
		{wsupgrade.CloseCode(4000), 4000, "CloseCode(4000)"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, "value", tc.val, uint16(tc.code))
			assert.Equal(t, "name", tc.name, tc.code.String())
		})
	}
}
