package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "School Administration API",
        "description": "Student records with a change request approval workflow",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Access tokens"},
        {"name": "Classes", "description": "Class catalogue"},
        {"name": "Subjects", "description": "Subjects per class"},
        {"name": "Students", "description": "Student register"},
        {"name": "Marks", "description": "Subject marks and summaries"},
        {"name": "Attendance", "description": "Daily attendance"},
        {"name": "Fees", "description": "Monthly fee ledger"},
        {"name": "Monthly Tests", "description": "Monthly tests and their marks"},
        {"name": "Change Requests", "description": "Pending edits and their review"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes": {
            "get": {
                "tags": ["Classes"],
                "summary": "List classes",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Classes"],
                "summary": "Create class",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateClassRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate name", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/subjects": {
            "get": {
                "tags": ["Subjects"],
                "summary": "List subjects",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "class_id", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Subjects"],
                "summary": "Create subject",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSubjectRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Subject already exists in class", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "class_admitted", "in": "query", "type": "string"},
                    {"name": "gender", "in": "query", "type": "string", "enum": ["boys", "girls"]}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Students"],
                "summary": "Create or modify students",
                "description": "Accepts an object or an array. Objects with an id are staged as change requests.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StudentPayload"}}
                ],
                "responses": {
                    "200": {"description": "Unchanged or batch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Deferred for approval", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get student",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Students"],
                "summary": "Modify student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StudentPayload"}}
                ],
                "responses": {
                    "200": {"description": "Unchanged", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Deferred for approval", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/marks": {
            "get": {
                "tags": ["Marks"],
                "summary": "List marks with pending values",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "subject_id", "in": "query", "type": "string"},
                    {"name": "class_id", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Marks"],
                "summary": "Create or modify marks",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MarksPayload"}}
                ],
                "responses": {
                    "200": {"description": "Unchanged or batch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Deferred for approval", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/marks/summary": {
            "get": {
                "tags": ["Marks"],
                "summary": "Marks summary of a student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "student_id", "in": "query", "required": true, "type": "string"},
                    {"name": "class_id", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Class outside scope", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List attendance",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "class_admitted", "in": "query", "type": "string"},
                    {"name": "date", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Attendance"],
                "summary": "Create or modify attendance",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AttendancePayload"}}
                ],
                "responses": {
                    "200": {"description": "Unchanged or batch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Deferred for approval", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/class": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark attendance for a whole class",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ClassAttendanceRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/fees": {
            "get": {
                "tags": ["Fees"],
                "summary": "List fees",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "month", "in": "query", "type": "string"},
                    {"name": "class_admitted", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Fees"],
                "summary": "Create or modify fees",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FeePayload"}}
                ],
                "responses": {
                    "200": {"description": "Unchanged or batch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Deferred for approval", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/monthly-tests": {
            "get": {
                "tags": ["Monthly Tests"],
                "summary": "List monthly tests",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "class_id", "in": "query", "type": "string"},
                    {"name": "month", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Monthly Tests"],
                "summary": "Create or modify monthly tests",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MonthlyTestPayload"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Deferred for approval", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/monthly-tests/{id}": {
            "put": {
                "tags": ["Monthly Tests"],
                "summary": "Modify monthly test",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MonthlyTestPayload"}}
                ],
                "responses": {
                    "200": {"description": "Unchanged", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Deferred for approval", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/monthly-tests/{id}/summary": {
            "get": {
                "tags": ["Monthly Tests"],
                "summary": "Monthly test summary",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/test-marks": {
            "get": {
                "tags": ["Monthly Tests"],
                "summary": "List test marks with pending values",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "test_id", "in": "query", "type": "string"},
                    {"name": "student_id", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Monthly Tests"],
                "summary": "Create or modify test marks",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TestMarksPayload"}}
                ],
                "responses": {
                    "200": {"description": "Unchanged or batch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Deferred for approval", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/change-requests": {
            "get": {
                "tags": ["Change Requests"],
                "summary": "List change requests",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "model_type", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Change Requests"],
                "summary": "Submit a change request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ManualChangeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "NO_CHANGES", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/change-requests/pending": {
            "get": {"tags": ["Change Requests"], "summary": "Pending change requests", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}}
        },
        "/change-requests/approved": {
            "get": {"tags": ["Change Requests"], "summary": "Approved change requests", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}}
        },
        "/change-requests/rejected": {
            "get": {"tags": ["Change Requests"], "summary": "Rejected change requests", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}}
        },
        "/change-requests/pending-count": {
            "get": {"tags": ["Change Requests"], "summary": "Pending count", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}}
        },
        "/change-requests/summary": {
            "get": {"tags": ["Change Requests"], "summary": "Status summary", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}}
        },
        "/change-requests/by-object": {
            "get": {
                "tags": ["Change Requests"],
                "summary": "Pending change request of a record",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "model_type", "in": "query", "required": true, "type": "string"},
                    {"name": "object_id", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/change-requests/export": {
            "get": {
                "tags": ["Change Requests"],
                "summary": "Export change requests",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "model_type", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "File"}}
            }
        },
        "/change-requests/{id}": {
            "get": {
                "tags": ["Change Requests"],
                "summary": "Get change request",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/change-requests/{id}/approve": {
            "post": {
                "tags": ["Change Requests"],
                "summary": "Approve change request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ReviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already reviewed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Stored value cannot be converted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/change-requests/{id}/reject": {
            "post": {
                "tags": ["Change Requests"],
                "summary": "Reject change request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ReviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already reviewed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/change-requests/bulk-approve": {
            "post": {
                "tags": ["Change Requests"],
                "summary": "Approve several change requests",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkReviewRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/change-requests/bulk-reject": {
            "post": {
                "tags": ["Change Requests"],
                "summary": "Reject several change requests",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkReviewRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["username", "password"]
        },
        "CreateClassRequest": {
            "type": "object",
            "properties": {"name": {"type": "string"}},
            "required": ["name"]
        },
        "CreateSubjectRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "class_id": {"type": "string"}
            },
            "required": ["name", "class_id"]
        },
        "StudentPayload": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "serial_no": {"type": "integer"},
                "name": {"type": "string"},
                "date_of_admission": {"type": "string", "format": "date"},
                "dob": {"type": "string", "format": "date"},
                "dob_words": {"type": "string"},
                "father_name": {"type": "string"},
                "tribe_or_caste": {"type": "string"},
                "occupation": {"type": "string"},
                "residence": {"type": "string"},
                "class_admitted": {"type": "string"},
                "age_at_admission": {"type": "integer"},
                "class_withdrawn": {"type": "string"},
                "date_of_withdrawal": {"type": "string", "format": "date"},
                "remarks": {"type": "string"},
                "gender": {"type": "string", "enum": ["boys", "girls"]}
            }
        },
        "MarksPayload": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "student_id": {"type": "string"},
                "subject_id": {"type": "string"},
                "marks": {"type": "number"}
            }
        },
        "AttendancePayload": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "student_id": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "present": {"type": "boolean"}
            },
            "required": ["present"]
        },
        "ClassAttendanceRequest": {
            "type": "object",
            "properties": {
                "class_admitted": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "present": {"type": "boolean"}
            },
            "required": ["class_admitted", "date", "present"]
        },
        "FeePayload": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "student_id": {"type": "string"},
                "month": {"type": "string"},
                "total_fee": {"type": "number"},
                "submitted_fee": {"type": "number"},
                "fine": {"type": "number"},
                "absentees": {"type": "integer"},
                "fine_per_absent": {"type": "number"}
            }
        },
        "MonthlyTestPayload": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "subject": {"type": "string"},
                "class_id": {"type": "string"},
                "total_marks": {"type": "integer"},
                "description": {"type": "string"},
                "month": {"type": "string"}
            }
        },
        "TestMarksPayload": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "test_id": {"type": "string"},
                "student_id": {"type": "string"},
                "marks": {"type": "number"}
            },
            "required": ["marks"]
        },
        "ManualChangeRequest": {
            "type": "object",
            "properties": {
                "model_type": {"type": "string", "enum": ["student", "attendance", "marks", "fee", "monthly_test", "test_marks"]},
                "object_id": {"type": "string"},
                "old_data": {"type": "object"},
                "new_data": {"type": "object"}
            },
            "required": ["model_type", "object_id", "old_data", "new_data"]
        },
        "ReviewRequest": {
            "type": "object",
            "properties": {"notes": {"type": "string"}}
        },
        "BulkReviewRequest": {
            "type": "object",
            "properties": {
                "ids": {"type": "array", "items": {"type": "string"}},
                "notes": {"type": "string"}
            },
            "required": ["ids"]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
