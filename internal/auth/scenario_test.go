// ABOUTME: End-to-end authentication scenario tests
// ABOUTME: Signed-request acceptance, tampering rejection, and membership denial

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/cumulus-auth/internal/signer"
)

// setupScenario creates u1 (member of t1), u2 (manager of t2), and an
// admin, mirroring a small deployment.
func setupScenario(t *testing.T) *Service {
	t.Helper()
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "u1", "AK1", "SK1", false)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "u2", "AK2", "SK2", false)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "root", "AKR", "SKR", true)
	require.NoError(t, err)

	_, err = svc.CreateProject(ctx, "t1", "u1", "", nil)
	require.NoError(t, err)
	_, err = svc.CreateProject(ctx, "t2", "u2", "", nil)
	require.NoError(t, err)

	return svc
}

func ec2Sign(secret string, params map[string]string, verb, host, path string) string {
	return signer.New(secret).SignEC2(params, verb, host, path)
}

func TestAuthenticate_ValidSignature(t *testing.T) {
	svc := setupScenario(t)
	ctx := context.Background()

	params := map[string]string{"Action": "DescribeInstances", "Version": "2010-06-15"}
	sig := ec2Sign("SK1", params, "GET", "api.example.com:8773", "/services/Cloud")

	user, project, err := svc.Authenticate(ctx, "AK1:t1", sig, params,
		"GET", "api.example.com:8773", "/services/Cloud", CheckTypeEC2, nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "t1", project.ID)
}

func TestAuthenticate_TamperedParameter(t *testing.T) {
	svc := setupScenario(t)
	ctx := context.Background()

	params := map[string]string{"Action": "DescribeInstances", "Version": "2010-06-15"}
	sig := ec2Sign("SK1", params, "GET", "api.example.com:8773", "/services/Cloud")

	// One parameter value altered after signing.
	params["Action"] = "TerminateInstances"

	_, _, err := svc.Authenticate(ctx, "AK1:t1", sig, params,
		"GET", "api.example.com:8773", "/services/Cloud", CheckTypeEC2, nil)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAuthenticate_WrongSecret(t *testing.T) {
	svc := setupScenario(t)
	ctx := context.Background()

	params := map[string]string{"Action": "DescribeInstances"}
	sig := ec2Sign("SK2", params, "GET", "host", "/")

	_, _, err := svc.Authenticate(ctx, "AK1:t1", sig, params,
		"GET", "host", "/", CheckTypeEC2, nil)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAuthenticate_NonMemberReportedAsNotFound(t *testing.T) {
	svc := setupScenario(t)
	ctx := context.Background()

	params := map[string]string{"Action": "DescribeInstances"}
	sig := ec2Sign("SK1", params, "GET", "host", "/")

	// u1 is not a member of t2 and not an admin. The denial is
	// indistinguishable from the project not existing.
	_, _, err := svc.Authenticate(ctx, "AK1:t2", sig, params,
		"GET", "host", "/", CheckTypeEC2, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAuthenticate_AdminCrossesProjects(t *testing.T) {
	svc := setupScenario(t)
	ctx := context.Background()

	params := map[string]string{"Action": "DescribeInstances"}
	sig := ec2Sign("SKR", params, "GET", "host", "/")

	user, project, err := svc.Authenticate(ctx, "AKR:t1", sig, params,
		"GET", "host", "/", CheckTypeEC2, nil)
	require.NoError(t, err)
	assert.Equal(t, "root", user.ID)
	assert.Equal(t, "t1", project.ID)
}

func TestAuthenticate_UnknownAccessKey(t *testing.T) {
	svc := setupScenario(t)
	ctx := context.Background()

	_, _, err := svc.Authenticate(ctx, "AK-unknown:t1", "sig", nil,
		"GET", "host", "/", CheckTypeEC2, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthenticate_UnknownProject(t *testing.T) {
	svc := setupScenario(t)
	ctx := context.Background()

	_, _, err := svc.Authenticate(ctx, "AK1:ghost", "sig", nil,
		"GET", "host", "/", CheckTypeEC2, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthenticate_DefaultProjectIsOwnAccount(t *testing.T) {
	svc := setupScenario(t)
	ctx := context.Background()

	// With no project in the access string the user's own name is
	// used, so tools without project knowledge keep working. The
	// account project must exist under that name.
	_, err := svc.CreateProject(ctx, "u1", "u1", "", nil)
	require.NoError(t, err)

	params := map[string]string{"Action": "DescribeInstances"}
	sig := ec2Sign("SK1", params, "GET", "host", "/")

	_, project, err := svc.Authenticate(ctx, "AK1", sig, params,
		"GET", "host", "/", CheckTypeEC2, nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", project.ID)
}

func TestAuthenticate_S3Signature(t *testing.T) {
	svc := setupScenario(t)
	ctx := context.Background()

	headers := map[string]string{"X-Amz-Acl": "private"}
	sig := signer.New("SK1").SignS3(headers, "PUT", "/bucket/key")

	user, _, err := svc.Authenticate(ctx, "AK1:t1", sig, nil,
		"PUT", "", "/bucket/key", CheckTypeS3, headers)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	headers["X-Amz-Acl"] = "public-read"
	_, _, err = svc.Authenticate(ctx, "AK1:t1", sig, nil,
		"PUT", "", "/bucket/key", CheckTypeS3, headers)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAuthenticate_UnrecognizedCheckTypeSkipsSignature(t *testing.T) {
	svc := setupScenario(t)
	ctx := context.Background()

	// Legacy escape hatch: any other check type accepts without
	// verifying the signature. Membership is still enforced.
	user, _, err := svc.Authenticate(ctx, "AK1:t1", "garbage", nil,
		"GET", "host", "/", "none", nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	_, _, err = svc.Authenticate(ctx, "AK1:t2", "garbage", nil,
		"GET", "host", "/", "none", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
