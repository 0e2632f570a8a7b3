package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"

	"hr_portal/portal/services"

	"github.com/go-chi/chi/v5"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
		headers:  nil,
		json:     nil,
		body:     nil,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(email, password string) *httpTestRequest {
	r.login = &loginInfo{Email: email, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Email, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, res.StatusCode, w.Body.String())
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

// downloadTo runs the request and copies the raw response body to dst rather
// than decoding json.
func downloadTo(r *httpTestRequest, dst io.Writer) error {
	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	w := httptest.NewRecorder()
	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%v request to endpoint %v returned status %d", r.method, r.endpoint, res.StatusCode)
	}

	_, err := io.Copy(dst, res.Body)
	return err
}

var ErrUnauthorized = errors.New("unauthorized")

type client struct {
	api       chi.Router
	authToken string
	userId    string
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) signup(username, email, password string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password,
	}

	err := c.Post("/user/signup").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) login(login loginInfo) error {
	var res map[string]string
	err := c.Get("/user/login").Login(login.Email, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res["access_token"]
	c.userId = res["user_id"]

	return nil
}

type addUserArgs struct {
	Username     string
	Email        string
	FirstName    string
	LastName     string
	Password     string
	IsManager    bool
	DepartmentId string
	JobTitle     string
	PhoneNumber  string
}

func (c *client) addUser(args addUserArgs) (loginInfo, error) {
	body := map[string]interface{}{
		"username":      args.Username,
		"email":         args.Email,
		"first_name":    args.FirstName,
		"last_name":     args.LastName,
		"password":      args.Password,
		"is_manager":    args.IsManager,
		"department_id": args.DepartmentId,
		"job_title":     args.JobTitle,
		"phone_number":  args.PhoneNumber,
	}

	var res map[string]string
	err := c.Post("/user/create").Json(body).Do(&res)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: args.Email, Password: args.Password}, nil
}

func (c *client) addUserId(args addUserArgs) (string, error) {
	body := map[string]interface{}{
		"username":      args.Username,
		"email":         args.Email,
		"first_name":    args.FirstName,
		"last_name":     args.LastName,
		"password":      args.Password,
		"is_manager":    args.IsManager,
		"department_id": args.DepartmentId,
		"job_title":     args.JobTitle,
		"phone_number":  args.PhoneNumber,
	}

	var res map[string]string
	err := c.Post("/user/create").Json(body).Do(&res)
	return res["id"], err
}

func (c *client) deleteUser(userId string) error {
	return c.Delete(fmt.Sprintf("/user/%v", userId)).Do(nil)
}

func (c *client) userInfo() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/user/info").Do(&res)
	return res, err
}

func (c *client) listUsers(query string) ([]services.UserInfo, error) {
	endpoint := "/user/list"
	if query != "" {
		endpoint += "?" + query
	}
	var res []services.UserInfo
	err := c.Get(endpoint).Do(&res)
	return res, err
}

func (c *client) createDepartment(name, description string) (string, error) {
	body := map[string]string{"name": name, "description": description}

	var res map[string]string
	err := c.Post("/department/create").Json(body).Do(&res)
	return res["id"], err
}

func (c *client) listDepartments() ([]services.DepartmentInfo, error) {
	var res []services.DepartmentInfo
	err := c.Get("/department/list").Do(&res)
	return res, err
}

func (c *client) uploadPicture(userId, filename, content string) error {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("picture", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write([]byte(content)); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return c.Post(fmt.Sprintf("/user/%v/picture", userId)).
		Header("Content-Type", writer.FormDataContentType()).
		Body(body).
		Do(nil)
}

func (c *client) uploadKPIFile(employeeId, quarter string, year int, filename, content string) error {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("quarter", quarter); err != nil {
		return err
	}
	if err := writer.WriteField("year", fmt.Sprintf("%d", year)); err != nil {
		return err
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write([]byte(content)); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return c.Post(fmt.Sprintf("/kpi/employee/%v", employeeId)).
		Header("Content-Type", writer.FormDataContentType()).
		Body(body).
		Do(nil)
}
